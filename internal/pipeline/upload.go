// Package pipeline owns the price-list lifecycle: accepting uploads,
// claiming pending lists and running extraction plus matching over
// them.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/docstore"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

// UploadRequest carries everything needed to register one supplier
// price list for later processing.
type UploadRequest struct {
	CompanyID    string
	SupplierName string
	ListDate     *string
	Currency     internal.Currency
	ExchangeRate *float64
	Format       internal.SourceFormat
	Filename     string
	Blob         []byte
}

type Uploader struct {
	db   *storage.DB
	docs *docstore.Store
}

func NewUploader(db *storage.DB, docs *docstore.Store) *Uploader {
	return &Uploader{db: db, docs: docs}
}

// Upload validates, stores the document and creates the PENDING list.
// The document is persisted before the row, so a crash in between
// leaves an orphaned blob rather than a list with no document.
func (u *Uploader) Upload(req UploadRequest) (internal.PriceList, error) {
	if strings.TrimSpace(req.CompanyID) == "" {
		return internal.PriceList{}, fmt.Errorf("upload: missing company")
	}
	if strings.TrimSpace(req.SupplierName) == "" {
		return internal.PriceList{}, fmt.Errorf("upload: missing supplier name")
	}
	if !internal.SupportedFormat(req.Format) {
		return internal.PriceList{}, fmt.Errorf("upload: unsupported format %q", req.Format)
	}
	if !internal.SupportedCurrency(req.Currency) {
		return internal.PriceList{}, fmt.Errorf("upload: unsupported currency %q", req.Currency)
	}
	if req.Currency == internal.CurrencyVES && (req.ExchangeRate == nil || *req.ExchangeRate <= 0) {
		return internal.PriceList{}, fmt.Errorf("upload: VES list needs a positive exchange rate")
	}

	ref, err := u.docs.Store(req.CompanyID, req.Filename, req.Blob)
	if err != nil {
		return internal.PriceList{}, err
	}

	return u.db.CreatePriceList(internal.PriceList{
		CompanyID:    req.CompanyID,
		SupplierName: strings.TrimSpace(req.SupplierName),
		ListDate:     req.ListDate,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		SourceRef:    ref,
		SourceFormat: req.Format,
	})
}
