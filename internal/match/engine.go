// Package match resolves extracted records against the company's
// master catalog through a ladder of increasingly expensive tiers:
// exact code, search index, bounded local scan. Pairwise AI scoring is
// exposed separately for comparison time.
package match

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/search"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

const (
	MethodCode   = "code"
	MethodSearch = "search"
	MethodLocal  = "local"
)

// SearchIndex is the slice of the search client the engine needs; nil
// means no index is configured.
type SearchIndex interface {
	Query(ctx context.Context, companyID, normalizedName string) ([]search.Hit, error)
	Index(ctx context.Context, entry internal.CatalogEntry) error
}

// Outcome is a successful catalog resolution.
type Outcome struct {
	CatalogID  int
	Confidence float64
	Method     string
}

type Engine struct {
	db             *storage.DB
	idx            SearchIndex
	gen            ai.Generator
	model          string
	threshold      float64
	localScanLimit int
}

func NewEngine(db *storage.DB, idx SearchIndex, gen ai.Generator, model string, threshold float64, localScanLimit int) *Engine {
	return &Engine{db: db, idx: idx, gen: gen, model: model, threshold: threshold, localScanLimit: localScanLimit}
}

// Match walks the tiers for one record. A nil outcome with nil error
// means no catalog entry is close enough; the record stays unmatched.
func (e *Engine) Match(ctx context.Context, companyID string, rec internal.ListRecord) (*Outcome, error) {
	if rec.OriginalCode != nil {
		entry, err := e.db.GetCatalogByCode(companyID, *rec.OriginalCode)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return &Outcome{CatalogID: entry.ID, Confidence: 1.0, Method: MethodCode}, nil
		}
	}

	if rec.NormalizedName == "" {
		return nil, nil
	}

	if e.idx != nil {
		out, err := e.matchViaSearch(ctx, companyID, rec.NormalizedName)
		if err == nil && out != nil {
			return out, nil
		}
		if err != nil && !errors.Is(err, search.ErrUnavailable) {
			return nil, err
		}
	}

	return e.matchLocal(companyID, rec)
}

func (e *Engine) matchViaSearch(ctx context.Context, companyID, normalizedName string) (*Outcome, error) {
	hits, err := e.idx.Query(ctx, companyID, normalizedName)
	if err != nil {
		return nil, err
	}

	bestID := 0
	bestScore := 0.0
	for _, hit := range hits {
		// the engine's relevance score is not comparable across
		// queries, so candidates are rescored with our own similarity
		score := util.ScoreNames(normalizedName, hit.Name)
		for _, alt := range hit.AltNames {
			if s := util.ScoreNames(normalizedName, alt); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestID, bestScore = hit.CatalogID, score
		}
	}
	if bestID == 0 || bestScore < e.threshold {
		return nil, nil
	}
	return &Outcome{CatalogID: bestID, Confidence: bestScore, Method: MethodSearch}, nil
}

func (e *Engine) matchLocal(companyID string, rec internal.ListRecord) (*Outcome, error) {
	entries, err := e.db.ListRecentCatalog(companyID, e.localScanLimit)
	if err != nil {
		return nil, err
	}
	idx := buildLocalIndex(entries)

	// normalized code first: catches codes the exact tier missed
	// because of stray whitespace or punctuation
	if rec.OriginalCode != nil {
		if id, ok := idx.byCode[util.NormalizeCode(*rec.OriginalCode)]; ok {
			return &Outcome{CatalogID: id, Confidence: 1.0, Method: MethodLocal}, nil
		}
	}

	if id, ok := idx.byName[rec.NormalizedName]; ok {
		return &Outcome{CatalogID: id, Confidence: 0.95, Method: MethodLocal}, nil
	}

	bestID := 0
	bestScore := 0.0
	for id, names := range idx.namesByID {
		for _, name := range names {
			if !contains(rec.NormalizedName, name) {
				continue
			}
			score := util.ScoreNames(rec.NormalizedName, name)
			if score < e.threshold {
				score = e.threshold
			}
			if score > bestScore {
				bestID, bestScore = id, score
			}
		}
	}
	if bestID == 0 {
		return nil, nil
	}
	return &Outcome{CatalogID: bestID, Confidence: bestScore, Method: MethodLocal}, nil
}

// contains accepts containment in either direction, guarded against
// trivially short names flooding the catalog with false joins.
func contains(a, b string) bool {
	if len(a) < 6 || len(b) < 6 {
		return a == b
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

const pairPrompt = `Evalúa si estos dos nombres describen el mismo producto:
A: %q
B: %q
Responde UNICAMENTE con un número entre 0 y 1, donde 1 es el mismo producto.`

// PairScore asks the model whether two product names denote the same
// product. Used at comparison time only, after the cheap tiers failed.
func (e *Engine) PairScore(ctx context.Context, nameA, nameB string) (float64, error) {
	if e.gen == nil {
		return 0, fmt.Errorf("match: no generator configured for pair scoring")
	}
	raw, _, err := e.gen.Generate(ctx, e.model, fmt.Sprintf(pairPrompt, nameA, nameB), nil)
	if err != nil {
		return 0, err
	}

	token := strings.TrimSpace(raw)
	if i := strings.IndexAny(token, "0123456789"); i >= 0 {
		token = token[i:]
	}
	if i := strings.IndexFunc(token, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != ','
	}); i >= 0 {
		token = token[:i]
	}
	token = strings.ReplaceAll(token, ",", ".")

	score, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("match: unparseable pair score %q", raw)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// EnsureEntry creates a catalog entry for a record that matched no
// existing product, so the next list from any supplier can join on it.
func (e *Engine) EnsureEntry(ctx context.Context, companyID string, rec internal.ListRecord) (internal.CatalogEntry, error) {
	code := ""
	if rec.OriginalCode != nil {
		code = util.NormalizeCode(*rec.OriginalCode)
	}
	if code == "" {
		code = "CAT-" + strings.ToUpper(uuid.NewString()[:8])
	}

	entry, err := e.db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID:      companyID,
		Code:           code,
		CanonicalName:  rec.OriginalName,
		AlternateNames: []string{rec.OriginalName},
		Packaging:      rec.Packaging,
		Unit:           rec.Unit,
		Brand:          rec.Brand,
		Active:         true,
	})
	if err != nil {
		return internal.CatalogEntry{}, err
	}

	if e.idx != nil {
		// best effort; the local scan still finds the entry
		_ = e.idx.Index(ctx, entry)
	}
	return entry, nil
}

// RecordAlternate remembers the supplier's spelling on the matched
// entry so future lists hit the exact-name path.
func (e *Engine) RecordAlternate(ctx context.Context, catalogID int, originalName string) error {
	entry, err := e.db.AppendAlternateNames(catalogID, originalName)
	if err != nil {
		return err
	}
	if e.idx != nil && entry != nil {
		_ = e.idx.Index(ctx, *entry)
	}
	return nil
}
