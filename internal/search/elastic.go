// Package search maintains the optional Elasticsearch index over the
// master catalog. When the index is down or not configured the matcher
// falls back to a local scan, so every error surfaces as
// ErrUnavailable rather than failing the caller.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

// ErrUnavailable covers connection failures and server errors. It is
// a degradation signal, never a processing failure.
var ErrUnavailable = errors.New("search index unavailable")

// Hit is one index candidate. Score carries the engine's relevance
// score; callers rescore hits with their own similarity before
// applying thresholds.
type Hit struct {
	CatalogID int
	Name      string
	AltNames  []string
	Score     float64
}

type Client struct {
	es     *elasticsearch.Client
	prefix string
}

func NewClient(url, apiKey, indexPrefix string) (*Client, error) {
	cfg := elasticsearch.Config{Addresses: []string{url}}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Client{es: es, prefix: indexPrefix}, nil
}

func (c *Client) indexName(companyID string) string {
	return c.prefix + "-" + strings.ToLower(companyID)
}

type catalogDoc struct {
	CatalogID int      `json:"catalogId"`
	Name      string   `json:"name"`
	AltNames  []string `json:"altNames,omitempty"`
}

// Query fetches the closest catalog candidates for a normalized name.
// A missing index yields no hits, not an error.
func (c *Client) Query(ctx context.Context, companyID, normalizedName string) ([]Hit, error) {
	body := map[string]any{
		"size": 8,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  normalizedName,
				"fields": []string{"name^2", "altNames"},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName(companyID)),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: search returned %s", ErrUnavailable, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64    `json:"_score"`
				Source catalogDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{
			CatalogID: h.Source.CatalogID,
			Name:      h.Source.Name,
			AltNames:  h.Source.AltNames,
			Score:     h.Score,
		})
	}
	return hits, nil
}

// Index writes or overwrites one catalog entry's document.
func (c *Client) Index(ctx context.Context, entry internal.CatalogEntry) error {
	altNames := make([]string, 0, len(entry.AlternateNames))
	for _, alt := range entry.AlternateNames {
		if n := util.NormalizeName(alt); n != "" {
			altNames = append(altNames, n)
		}
	}
	doc := catalogDoc{
		CatalogID: entry.ID,
		Name:      util.NormalizeName(entry.CanonicalName),
		AltNames:  altNames,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		c.indexName(entry.CompanyID),
		bytes.NewReader(payload),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(strconv.Itoa(entry.ID)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: index returned %s", ErrUnavailable, res.Status())
	}
	return nil
}

// Reindex rebuilds the documents for a full catalog slice, typically
// after offline edits to the catalog table.
func (c *Client) Reindex(ctx context.Context, entries []internal.CatalogEntry) (int, error) {
	indexed := 0
	for _, entry := range entries {
		if err := c.Index(ctx, entry); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}
