package connectors

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/pipeline"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

// IntakeService fetches mailbox messages, picks out the ones carrying
// price lists and registers their attachments as pending uploads.
type IntakeService struct {
	db        *storage.DB
	connector MailConnector
	uploader  *pipeline.Uploader
	companyID string
}

type IntakeResult struct {
	Fetched      int
	Skipped      int
	ListsCreated int
}

func NewIntakeService(db *storage.DB, connector MailConnector, uploader *pipeline.Uploader, companyID string) *IntakeService {
	return &IntakeService{db: db, connector: connector, uploader: uploader, companyID: companyID}
}

// FetchAndIntake is idempotent per message: a message id already seen
// in the metadata table is skipped, so re-running a poll never
// duplicates lists.
func (s *IntakeService) FetchAndIntake(mailbox string, max int) (IntakeResult, error) {
	messages, err := s.connector.FetchInbox(mailbox, max)
	if err != nil {
		return IntakeResult{}, err
	}

	result := IntakeResult{Fetched: len(messages)}
	for _, msg := range messages {
		key := "mail:" + msg.Provider + ":" + msg.MessageID
		seen, err := s.db.GetMetadata(key)
		if err != nil {
			return result, err
		}
		if seen != nil {
			result.Skipped++
			continue
		}

		created, err := s.intakeMessage(msg)
		if err != nil {
			return result, err
		}
		result.ListsCreated += created
		if created == 0 {
			result.Skipped++
		}

		if err := s.db.SetMetadata(key, msg.ReceivedAt); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *IntakeService) intakeMessage(msg internal.FetchedMailMessage) (int, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		// a message we cannot parse is skipped, not fatal for the poll
		return 0, nil
	}

	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		names = append(names, att.FileName)
	}
	if detect := DetectPriceListMail(msg.Subject, env.Text, names); !detect.IsPriceList {
		return 0, nil
	}

	supplier := supplierFromAddress(msg.From)
	created := 0
	for _, att := range env.Attachments {
		format, ok := formatForFilename(att.FileName)
		if !ok {
			continue
		}
		if _, err := s.uploader.Upload(pipeline.UploadRequest{
			CompanyID:    s.companyID,
			SupplierName: supplier,
			Currency:     internal.CurrencyUSD,
			Format:       format,
			Filename:     att.FileName,
			Blob:         att.Content,
		}); err != nil {
			return created, err
		}
		created++
	}

	// a body-only mail with a price table still counts as a list
	if created == 0 && strings.Contains(strings.ToLower(env.HTML), "<table") {
		if _, err := s.uploader.Upload(pipeline.UploadRequest{
			CompanyID:    s.companyID,
			SupplierName: supplier,
			Currency:     internal.CurrencyUSD,
			Format:       internal.FormatHTML,
			Filename:     "cuerpo.html",
			Blob:         []byte(env.HTML),
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func formatForFilename(filename string) (internal.SourceFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return internal.FormatXLSX, true
	case ".xls":
		// legacy binary format the sheet reader cannot open; better
		// skipped at intake than a guaranteed extraction failure
		return "", false
	case ".csv":
		return internal.FormatCSV, true
	case ".pdf":
		return internal.FormatPDF, true
	case ".png", ".jpg", ".jpeg", ".webp":
		return internal.FormatImage, true
	case ".html", ".htm":
		return internal.FormatHTML, true
	default:
		return "", false
	}
}

// supplierFromAddress prefers the display name over the bare address.
func supplierFromAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.Index(from, "<"); i > 0 {
		name := strings.Trim(strings.TrimSpace(from[:i]), `"`)
		if name != "" {
			return name
		}
		from = strings.Trim(from[i:], "<>")
	}
	from = strings.Trim(from, "<>")
	if from == "" {
		return "Proveedor desconocido"
	}
	return from
}
