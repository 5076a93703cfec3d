package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/docstore"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/extract"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/match"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

type Processor struct {
	db        *storage.DB
	docs      *docstore.Store
	gateway   *extract.Gateway
	engine    *match.Engine
	costPer1K float64
}

func NewProcessor(db *storage.DB, docs *docstore.Store, gateway *extract.Gateway, engine *match.Engine, costPer1K float64) *Processor {
	return &Processor{db: db, docs: docs, gateway: gateway, engine: engine, costPer1K: costPer1K}
}

// ProcessList runs one list through extraction and matching.
//
// The scanned-PDF probe runs before the state claim: a list that needs
// conversion keeps its current state and the caller gets
// extract.ErrPDFConversionNeeded. Any failure after the claim moves
// the list to ERROR with the cause recorded on the row.
func (p *Processor) ProcessList(ctx context.Context, listID int) (internal.ProcessStats, error) {
	start := time.Now()
	stats := internal.ProcessStats{ListID: listID}

	list, err := p.db.GetPriceList(listID)
	if err != nil {
		return stats, err
	}
	if list == nil {
		return stats, fmt.Errorf("process: list %d not found", listID)
	}

	blob, err := p.docs.Download(list.SourceRef)
	if err != nil {
		return stats, err
	}

	if p.gateway.NeedsConversion(list.SourceFormat, blob) {
		return stats, extract.ErrPDFConversionNeeded
	}

	claimed, err := p.db.ClaimProcessing(listID)
	if err != nil {
		return stats, err
	}
	if !claimed {
		return stats, fmt.Errorf("process: list %d is %s, not claimable", listID, list.State)
	}

	if err := p.db.ClearListRecords(listID); err != nil {
		return stats, p.fail(listID, stats, err)
	}

	records, tokens, err := p.gateway.Extract(ctx, list.SourceFormat, list.SourceRef, blob)
	stats.TokensUsed = tokens
	stats.EstimatedCost = float64(tokens) / 1000 * p.costPer1K
	if err != nil {
		return stats, p.fail(listID, stats, err)
	}

	confidenceSum := 0.0
	for _, raw := range records {
		rec := internal.ListRecord{
			ListID:         listID,
			OriginalCode:   raw.Code,
			OriginalName:   raw.Name,
			NormalizedName: util.NormalizeName(raw.Name),
			Packaging:      raw.Packaging,
			Unit:           raw.Unit,
			UnitPrice:      raw.Price,
			Currency:       list.Currency,
			Brand:          raw.Brand,
		}
		if raw.Confidence != nil {
			rec.Confidence = *raw.Confidence
		}

		outcome, err := p.engine.Match(ctx, list.CompanyID, rec)
		if err != nil {
			return stats, p.fail(listID, stats, err)
		}
		if outcome != nil {
			rec.CatalogID = &outcome.CatalogID
		}

		if _, err := p.db.InsertListRecord(rec); err != nil {
			if errors.Is(err, storage.ErrEmptyName) {
				// name was all quantities and packaging; nothing to match on
				continue
			}
			return stats, p.fail(listID, stats, err)
		}

		stats.Extracted++
		confidenceSum += rec.Confidence
		if outcome != nil {
			stats.Matched++
			if err := p.engine.RecordAlternate(ctx, outcome.CatalogID, rec.OriginalName); err != nil {
				return stats, p.fail(listID, stats, err)
			}
		}
	}

	if stats.Extracted > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Extracted)
	}
	stats.ElapsedMs = time.Since(start).Milliseconds()

	if err := p.db.FinishProcessing(listID, internal.ListCompleted, stats.Extracted, ""); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Processor) fail(listID int, stats internal.ProcessStats, cause error) error {
	if err := p.db.FinishProcessing(listID, internal.ListError, 0, cause.Error()); err != nil {
		return fmt.Errorf("process: list %d failed (%v) and could not be marked: %w", listID, cause, err)
	}
	return fmt.Errorf("process: list %d: %w", listID, cause)
}

// ProcessPending claims and processes every PENDING list of a company,
// up to limit. Lists waiting on PDF conversion are skipped, the rest
// of the batch keeps going when one list fails.
func (p *Processor) ProcessPending(ctx context.Context, companyID string, limit int) ([]internal.ProcessStats, error) {
	pending, err := p.db.ListPriceLists(companyID, storage.ListFilter{State: internal.ListPending, Limit: limit})
	if err != nil {
		return nil, err
	}

	out := make([]internal.ProcessStats, 0, len(pending))
	for _, list := range pending {
		stats, err := p.ProcessList(ctx, list.ID)
		if err != nil {
			if errors.Is(err, extract.ErrPDFConversionNeeded) {
				continue
			}
			fmt.Printf("lista %d (%s): %v\n", list.ID, list.SupplierName, err)
			continue
		}
		out = append(out, stats)
	}
	return out, nil
}
