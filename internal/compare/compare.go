// Package compare joins two or more processed supplier lists over the
// master catalog and reports, per product, who sells it cheapest and
// how far apart the quotes are.
package compare

import (
	"context"
	"fmt"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/match"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
)

type Comparator struct {
	db            *storage.DB
	engine        *match.Engine
	threshold     float64
	anomalyPct    float64
	pairScanCap   int
	pairEarlyStop float64
}

func NewComparator(db *storage.DB, engine *match.Engine, threshold, anomalyPct float64, pairScanCap int, pairEarlyStop float64) *Comparator {
	return &Comparator{
		db:            db,
		engine:        engine,
		threshold:     threshold,
		anomalyPct:    anomalyPct,
		pairScanCap:   pairScanCap,
		pairEarlyStop: pairEarlyStop,
	}
}

type listSide struct {
	list    internal.PriceList
	records []internal.ListRecord
}

// Compare runs an n-way comparison across the given lists. The first
// list anchors the walk: each of its records looks for the same
// product in every other list, first through the shared catalog id,
// then through a capped pairwise AI scan over the still-unconsumed
// remainder.
func (c *Comparator) Compare(ctx context.Context, companyID string, listIDs []int) (internal.ComparisonRun, []internal.ComparisonResult, error) {
	sides, err := c.loadSides(companyID, listIDs)
	if err != nil {
		return internal.ComparisonRun{}, nil, err
	}

	run, err := c.db.CreateComparisonRun(companyID, listIDs)
	if err != nil {
		return internal.ComparisonRun{}, nil, err
	}
	if err := c.db.UpdateComparisonRunState(run.ID, internal.RunRunning); err != nil {
		return run, nil, err
	}

	results, totalCompared, matched, err := c.walk(ctx, companyID, run.ID, sides)
	if err != nil {
		_ = c.db.FinishComparisonRun(run.ID, totalCompared, matched, 0, internal.RunError)
		return run, nil, err
	}

	matchRate := 0.0
	if totalCompared > 0 {
		matchRate = float64(matched) / float64(totalCompared)
	}
	if err := c.db.FinishComparisonRun(run.ID, totalCompared, matched, matchRate, internal.RunDone); err != nil {
		return run, nil, err
	}

	run.TotalCompared = totalCompared
	run.Matched = matched
	run.MatchRate = matchRate
	run.State = internal.RunDone
	return run, results, nil
}

func (c *Comparator) loadSides(companyID string, listIDs []int) ([]listSide, error) {
	if len(listIDs) < 2 {
		return nil, fmt.Errorf("compare: need at least 2 lists, got %d", len(listIDs))
	}

	sides := make([]listSide, 0, len(listIDs))
	for _, id := range listIDs {
		list, err := c.db.GetPriceList(id)
		if err != nil {
			return nil, err
		}
		if list == nil {
			return nil, fmt.Errorf("compare: list %d not found", id)
		}
		if list.CompanyID != companyID {
			return nil, fmt.Errorf("compare: list %d belongs to another company", id)
		}
		if list.State != internal.ListCompleted {
			return nil, fmt.Errorf("compare: list %d is %s, only COMPLETED lists can be compared", id, list.State)
		}

		records, err := c.db.ListRecordsByList(id)
		if err != nil {
			return nil, err
		}
		sides = append(sides, listSide{list: *list, records: records})
	}
	return sides, nil
}

func (c *Comparator) walk(ctx context.Context, companyID string, runID int, sides []listSide) ([]internal.ComparisonResult, int, int, error) {
	anchor := sides[0]
	others := sides[1:]

	// every non-anchor record joins at most one comparison row
	consumed := make([]map[int]bool, len(others))
	for i := range consumed {
		consumed[i] = map[int]bool{}
	}

	results := []internal.ComparisonResult{}
	totalCompared := 0
	matched := 0

	for _, anchorRec := range anchor.records {
		totalCompared++

		group := []internal.ListRecord{anchorRec}
		prices := []internal.SupplierPrice{
			toSupplierPrice(anchor.list, anchorRec),
		}
		catalogID := anchorRec.CatalogID

		for i, side := range others {
			rec, err := c.findCounterpart(ctx, anchorRec, side, consumed[i])
			if err != nil {
				return nil, totalCompared, matched, err
			}
			if rec == nil {
				continue
			}
			consumed[i][rec.ID] = true
			group = append(group, *rec)
			prices = append(prices, toSupplierPrice(side.list, *rec))
			if catalogID == nil {
				catalogID = rec.CatalogID
			}
		}

		// a product quoted by a single supplier is counted, not emitted
		if len(group) < 2 {
			continue
		}
		matched++

		if catalogID == nil {
			entry, err := c.engine.EnsureEntry(ctx, companyID, anchorRec)
			if err != nil {
				return nil, totalCompared, matched, err
			}
			catalogID = &entry.ID
		}

		// every member joins the entry, and its spelling is remembered
		for _, member := range group {
			if member.CatalogID == nil {
				if err := c.db.SetRecordCatalog(member.ID, *catalogID); err != nil {
					return nil, totalCompared, matched, err
				}
				if err := c.engine.RecordAlternate(ctx, *catalogID, member.OriginalName); err != nil {
					return nil, totalCompared, matched, err
				}
			}
		}

		result := buildResult(runID, catalogID, anchorRec.OriginalName, prices, c.anomalyPct)
		id, err := c.db.InsertComparisonResult(result)
		if err != nil {
			return nil, totalCompared, matched, err
		}
		result.ID = id
		results = append(results, result)
	}

	return results, totalCompared, matched, nil
}

// findCounterpart locates the other list's record for the anchor
// product: by catalog id when both sides matched the catalog, else by
// a bounded AI pairwise scan with an early-stop score.
func (c *Comparator) findCounterpart(ctx context.Context, anchorRec internal.ListRecord, side listSide, consumed map[int]bool) (*internal.ListRecord, error) {
	if anchorRec.CatalogID != nil {
		for i := range side.records {
			rec := &side.records[i]
			if consumed[rec.ID] || rec.CatalogID == nil {
				continue
			}
			if *rec.CatalogID == *anchorRec.CatalogID {
				return rec, nil
			}
		}
	}

	scanned := 0
	var best *internal.ListRecord
	bestScore := 0.0
	for i := range side.records {
		rec := &side.records[i]
		if consumed[rec.ID] || rec.CatalogID != nil {
			continue
		}
		if scanned >= c.pairScanCap {
			break
		}
		scanned++

		score, err := c.engine.PairScore(ctx, anchorRec.OriginalName, rec.OriginalName)
		if err != nil {
			// pair scoring is best effort; a dead model never kills a run
			continue
		}
		if score > bestScore {
			best, bestScore = rec, score
		}
		// a near-perfect pair will not be beaten; stop burning AI calls
		if score >= c.pairEarlyStop {
			break
		}
	}

	if best == nil || bestScore < c.threshold {
		return nil, nil
	}
	return best, nil
}

func toSupplierPrice(list internal.PriceList, rec internal.ListRecord) internal.SupplierPrice {
	return internal.SupplierPrice{
		SupplierName: list.SupplierName,
		Price:        rec.UnitPrice,
		Currency:     rec.Currency,
		PriceUSD:     priceUSD(list, rec),
		Confidence:   rec.Confidence,
		RecordID:     rec.ID,
		ListID:       list.ID,
	}
}

// priceUSD converts VES quotes with the list's exchange rate; USD
// quotes pass through.
func priceUSD(list internal.PriceList, rec internal.ListRecord) float64 {
	if rec.Currency != internal.CurrencyVES {
		return rec.UnitPrice
	}
	if list.ExchangeRate == nil || *list.ExchangeRate <= 0 {
		return rec.UnitPrice
	}
	return rec.UnitPrice / *list.ExchangeRate
}

func buildResult(runID int, catalogID *int, productName string, prices []internal.SupplierPrice, anomalyPct float64) internal.ComparisonResult {
	min, max := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p.PriceUSD < min.PriceUSD {
			min = p
		}
		if p.PriceUSD > max.PriceUSD {
			max = p
		}
	}

	spread := 0.0
	if max.PriceUSD > 0 {
		spread = (max.PriceUSD - min.PriceUSD) / max.PriceUSD * 100
	}

	var anomaly *string
	if spread > anomalyPct {
		a := internal.AnomalyAbnormalRise
		anomaly = &a
	}

	return internal.ComparisonResult{
		RunID:       runID,
		CatalogID:   catalogID,
		ProductName: productName,
		Prices:      prices,
		Best:        internal.BestPrice{SupplierName: min.SupplierName, Amount: min.PriceUSD},
		SpreadPct:   spread,
		Anomaly:     anomaly,
	}
}
