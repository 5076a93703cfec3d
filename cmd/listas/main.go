package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/compare"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/config"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors"
	gmailconnector "github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors/gmail"
	imapconnector "github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors/imap"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/docstore"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/extract"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/listener"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/match"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/pipeline"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/search"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

type services struct {
	cfg       config.Config
	db        *storage.DB
	docs      *docstore.Store
	uploader  *pipeline.Uploader
	engine    *match.Engine
	processor *pipeline.Processor
}

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx := context.Background()
	cmd := os.Args[1]
	switch cmd {
	case "upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		company := fs.String("company", "", "company id")
		supplier := fs.String("supplier", "", "supplier name")
		currency := fs.String("currency", "USD", "USD|VES")
		rate := fs.Float64("rate", 0, "VES per USD, required for VES lists")
		date := fs.String("date", "", "list date, YYYY-MM-DD")
		file := fs.String("file", "", "document path")
		format := fs.String("format", "", "xlsx|csv|pdf|image|html (default: by extension)")
		_ = fs.Parse(os.Args[2:])
		if *company == "" || *supplier == "" || *file == "" {
			must(fmt.Errorf("--company, --supplier and --file are required"))
		}

		blob, err := os.ReadFile(*file)
		must(err)

		svc := newServices(ctx, cfg, db, false)
		req := pipeline.UploadRequest{
			CompanyID:    *company,
			SupplierName: *supplier,
			Currency:     internal.Currency(strings.ToUpper(*currency)),
			Format:       resolveFormat(*format, *file),
			Filename:     filepath.Base(*file),
			Blob:         blob,
		}
		if *rate > 0 {
			req.ExchangeRate = rate
		}
		if *date != "" {
			req.ListDate = date
		}
		list, err := svc.uploader.Upload(req)
		must(err)
		fmt.Printf("lista %d creada (%s, %s, %s)\n", list.ID, list.SupplierName, list.SourceFormat, list.State)

	case "process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		listID := fs.Int("list", 0, "process one list id")
		company := fs.String("company", "", "process all pending lists of a company")
		batch := fs.Int("batch", 10, "batch size for --company")
		_ = fs.Parse(os.Args[2:])

		svc := newServices(ctx, cfg, db, true)
		if *listID > 0 {
			stats, err := svc.processor.ProcessList(ctx, *listID)
			must(err)
			printStats(stats)
			return
		}
		if *company == "" {
			must(fmt.Errorf("--list or --company is required"))
		}
		statsList, err := svc.processor.ProcessPending(ctx, *company, *batch)
		must(err)
		for _, stats := range statsList {
			printStats(stats)
		}

	case "lists":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		company := fs.String("company", "", "company id")
		state := fs.String("state", "", "PENDING|PROCESSING|COMPLETED|ERROR")
		supplier := fs.String("supplier", "", "filter by supplier")
		_ = fs.Parse(os.Args[2:])
		if *company == "" {
			must(fmt.Errorf("--company is required"))
		}

		lists, err := db.ListPriceLists(*company, storage.ListFilter{
			State:    internal.ListState(strings.ToUpper(*state)),
			Supplier: *supplier,
		})
		must(err)
		for _, list := range lists {
			errMsg := ""
			if list.ErrorMessage != nil {
				errMsg = " error=" + *list.ErrorMessage
			}
			fmt.Printf("%d\t%s\t%s\t%s\tproductos=%d%s\n",
				list.ID, list.SupplierName, list.SourceFormat, list.State, list.ProductCount, errMsg)
		}

	case "compare":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		company := fs.String("company", "", "company id")
		listsArg := fs.String("lists", "", "comma-separated list ids")
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *company == "" || *listsArg == "" {
			must(fmt.Errorf("--company and --lists are required"))
		}
		listIDs, err := parseIDList(*listsArg)
		must(err)

		svc := newServices(ctx, cfg, db, true)
		comparator := compare.NewComparator(db, svc.engine, cfg.MatchThreshold, cfg.AnomalySpreadPct, cfg.PairScanCap, cfg.PairEarlyStop)
		run, results, err := comparator.Compare(ctx, *company, listIDs)
		must(err)

		stats := compare.ComputeStats(run, results, cfg.MinSpreadPct)
		fmt.Printf("comparación %d: comparados=%d emparejados=%d tasa=%.0f%%\n",
			run.ID, run.TotalCompared, run.Matched, run.MatchRate*100)
		fmt.Printf("con ahorro (> %.0f%%)=%d diferencia media=%.1f%% anomalías=%d\n",
			cfg.MinSpreadPct, stats.WithSavings, stats.AvgSpreadPct, stats.Anomalies)
		if stats.BestSupplier != "" {
			fmt.Printf("mejor proveedor: %s (%.0f%% de los productos)\n",
				stats.BestSupplier, stats.BestSupplierShare*100)
		}
		if *out != "" {
			must(compare.ExportRunToXLSX(results, *out))
			fmt.Printf("exportado a %s\n", *out)
		}

	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "comparison run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 || *out == "" {
			must(fmt.Errorf("--run and --out are required"))
		}

		results, err := db.ListComparisonResults(*runID)
		must(err)
		if len(results) == 0 {
			must(fmt.Errorf("la comparación %d no tiene resultados", *runID))
		}
		must(compare.ExportRunToXLSX(results, *out))
		fmt.Printf("exportadas %d filas a %s\n", len(results), *out)

	case "cleanup":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		listID := fs.Int("list", 0, "list id to delete, with its records and document")
		_ = fs.Parse(os.Args[2:])
		if *listID == 0 {
			must(fmt.Errorf("--list is required"))
		}

		list, err := db.GetPriceList(*listID)
		must(err)
		if list == nil {
			must(fmt.Errorf("lista %d no existe", *listID))
		}
		docs := docstore.New(cfg.FilesDir)
		must(docs.Delete(list.SourceRef))
		must(db.DeletePriceList(*listID))
		fmt.Printf("lista %d eliminada\n", *listID)

	case "search:reindex":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		company := fs.String("company", "", "company id")
		_ = fs.Parse(os.Args[2:])
		if *company == "" {
			must(fmt.Errorf("--company is required"))
		}
		must(cfg.Require("SEARCH_URL", cfg.SearchURL))

		idx, err := search.NewClient(cfg.SearchURL, cfg.SearchAPIKey, cfg.SearchIndexPrefix)
		must(err)
		entries, err := db.ListRecentCatalog(*company, 0)
		must(err)
		indexed, err := idx.Reindex(ctx, entries)
		must(err)
		fmt.Printf("reindexadas %d entradas del catálogo\n", indexed)

	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		mailbox := fs.String("mailbox", cfg.MailMailbox, "mailbox/label")
		max := fs.Int("max", cfg.MailFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("MAIL_COMPANY_ID", cfg.MailCompanyID))

		conn, err := makeConnector(cfg)
		must(err)
		svc := newServices(ctx, cfg, db, false)
		intake := connectors.NewIntakeService(db, conn, svc.uploader, cfg.MailCompanyID)
		result, err := intake.FetchAndIntake(*mailbox, *max)
		must(err)
		fmt.Printf("correos=%d listas_nuevas=%d omitidos=%d\n", result.Fetched, result.ListsCreated, result.Skipped)

	case "mail:listen":
		svc := newServices(ctx, cfg, db, true)
		s := listener.NewService(db, cfg, svc.uploader, svc.processor)
		must(s.Run(ctx))

	default:
		usage()
		os.Exit(1)
	}
}

// newServices wires the shared dependency graph. needsAI controls
// whether a missing GEMINI_API_KEY is fatal.
func newServices(ctx context.Context, cfg config.Config, db *storage.DB, needsAI bool) services {
	svc := services{cfg: cfg, db: db}
	svc.docs = docstore.New(cfg.FilesDir)
	svc.uploader = pipeline.NewUploader(db, svc.docs)

	var gen ai.Generator
	if cfg.GeminiAPIKey != "" {
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiRateLimitRPS, cfg.GeminiTimeoutMs)
		must(err)
		gen = client
	} else if needsAI {
		must(cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey))
	}

	var idx match.SearchIndex
	if cfg.SearchURL != "" {
		client, err := search.NewClient(cfg.SearchURL, cfg.SearchAPIKey, cfg.SearchIndexPrefix)
		must(err)
		idx = client
	}

	svc.engine = match.NewEngine(db, idx, gen, cfg.GeminiModel, cfg.MatchThreshold, cfg.LocalScanLimit)
	gateway := extract.NewGateway(gen, cfg.GeminiModel, cfg.DefaultConfidence, cfg.TabularCharBudget, cfg.PDFMultimodal)
	svc.processor = pipeline.NewProcessor(db, svc.docs, gateway, svc.engine, cfg.CostPer1KTokens)
	return svc
}

func makeConnector(cfg config.Config) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MailProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("proveedor de correo no soportado: %s", cfg.MailProvider)
	}
}

func resolveFormat(flagValue, file string) internal.SourceFormat {
	if flagValue != "" {
		return internal.SourceFormat(strings.ToLower(flagValue))
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx":
		return internal.FormatXLSX
	case ".csv":
		return internal.FormatCSV
	case ".pdf":
		return internal.FormatPDF
	case ".png", ".jpg", ".jpeg", ".webp":
		return internal.FormatImage
	case ".html", ".htm":
		return internal.FormatHTML
	default:
		return internal.SourceFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), "."))
	}
}

func parseIDList(input string) ([]int, error) {
	parts := strings.Split(input, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		var id int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &id); err != nil {
			return nil, fmt.Errorf("id de lista inválido: %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func printStats(stats internal.ProcessStats) {
	fmt.Printf("lista %d: extraídos=%d emparejados=%d confianza=%.0f%% tokens=%d costo=$%.4f en %dms\n",
		stats.ListID, stats.Extracted, stats.Matched, stats.AvgConfidence,
		stats.TokensUsed, stats.EstimatedCost, stats.ElapsedMs)
}

func usage() {
	fmt.Println("usage: listas <command>")
	fmt.Println("commands:")
	fmt.Println("  upload --company=... --supplier=... --file=lista.xlsx [--currency=USD|VES --rate=36.5 --date=2025-08-01]")
	fmt.Println("  process --list=1 | --company=... [--batch=10]")
	fmt.Println("  lists --company=... [--state=PENDING] [--supplier=...]")
	fmt.Println("  compare --company=... --lists=1,2[,3...] [--out=./out/comparacion.xlsx]")
	fmt.Println("  export --run=1 --out=./out/comparacion.xlsx")
	fmt.Println("  cleanup --list=1")
	fmt.Println("  search:reindex --company=...")
	fmt.Println("  mail:fetch [--mailbox=INBOX] [--max=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
