// Package listener is the polling daemon: each cycle pulls supplier
// mail into pending price lists and processes whatever is pending.
package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal/config"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors"
	gmailconnector "github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors/gmail"
	imapconnector "github.com/Fanfaster01/nota-debito-app-sub000/internal/connectors/imap"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/pipeline"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	uploader  *pipeline.Uploader
	processor *pipeline.Processor
}

func NewService(db *storage.DB, cfg config.Config, uploader *pipeline.Uploader, processor *pipeline.Processor) *Service {
	return &Service{db: db, cfg: cfg, uploader: uploader, processor: processor}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("ciclo del listener falló: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.ListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	fetched, created := 0, 0
	if s.cfg.MailCompanyID != "" {
		mailConnector, err := s.makeConnector()
		if err != nil {
			return err
		}
		intake := connectors.NewIntakeService(s.db, mailConnector, s.uploader, s.cfg.MailCompanyID)
		result, err := intake.FetchAndIntake(s.cfg.MailMailbox, s.cfg.MailFetchMax)
		if err != nil {
			return err
		}
		fetched, created = result.Fetched, result.ListsCreated
	}

	statsList, err := s.processor.ProcessPending(ctx, s.cfg.MailCompanyID, s.cfg.ListenerProcessBatch)
	if err != nil {
		return err
	}

	tokens := 0
	for _, stats := range statsList {
		tokens += stats.TokensUsed
	}
	fmt.Printf("ciclo completado correos=%d listas_nuevas=%d procesadas=%d tokens=%d\n",
		fetched, created, len(statsList), tokens)
	return nil
}

func (s *Service) makeConnector() (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.MailProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("proveedor de correo no soportado: %s", s.cfg.MailProvider)
	}
}
