package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/config"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/docstore"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/extract"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/listener"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/match"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/pipeline"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/search"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey))

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gen, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiRateLimitRPS, cfg.GeminiTimeoutMs)
	must(err)
	defer gen.Close()

	var idx match.SearchIndex
	if cfg.SearchURL != "" {
		client, err := search.NewClient(cfg.SearchURL, cfg.SearchAPIKey, cfg.SearchIndexPrefix)
		must(err)
		idx = client
	}

	docs := docstore.New(cfg.FilesDir)
	uploader := pipeline.NewUploader(db, docs)
	engine := match.NewEngine(db, idx, gen, cfg.GeminiModel, cfg.MatchThreshold, cfg.LocalScanLimit)
	gateway := extract.NewGateway(gen, cfg.GeminiModel, cfg.DefaultConfidence, cfg.TabularCharBudget, cfg.PDFMultimodal)
	processor := pipeline.NewProcessor(db, docs, gateway, engine, cfg.CostPer1KTokens)

	svc := listener.NewService(db, cfg, uploader, processor)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
