package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
)

// ErrEmptyName rejects persisting a record whose normalized name is empty.
var ErrEmptyName = errors.New("record has empty normalized name")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS price_lists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  companyId TEXT NOT NULL,
  supplierName TEXT NOT NULL,
  listDate TEXT,
  currency TEXT NOT NULL,
  exchangeRate REAL,
  sourceRef TEXT NOT NULL,
  sourceFormat TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'PENDING',
  productCount INTEGER NOT NULL DEFAULT 0,
  errorMessage TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_price_lists_company ON price_lists(companyId, state);

CREATE TABLE IF NOT EXISTS list_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  listId INTEGER NOT NULL,
  originalCode TEXT,
  originalName TEXT NOT NULL,
  normalizedName TEXT NOT NULL,
  packaging TEXT,
  unit TEXT,
  unitPrice REAL NOT NULL,
  currency TEXT NOT NULL,
  brand TEXT,
  confidence REAL NOT NULL,
  catalogId INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(listId) REFERENCES price_lists(id)
);
CREATE INDEX IF NOT EXISTS idx_list_records_list ON list_records(listId);

CREATE TABLE IF NOT EXISTS catalog_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  companyId TEXT NOT NULL,
  code TEXT NOT NULL,
  canonicalName TEXT NOT NULL,
  altNamesJson TEXT NOT NULL DEFAULT '[]',
  packaging TEXT,
  unit TEXT,
  category TEXT,
  brand TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(companyId, code)
);
CREATE INDEX IF NOT EXISTS idx_catalog_company ON catalog_entries(companyId);

CREATE TABLE IF NOT EXISTS comparison_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  companyId TEXT NOT NULL,
  listIdsJson TEXT NOT NULL,
  totalCompared INTEGER NOT NULL DEFAULT 0,
  matched INTEGER NOT NULL DEFAULT 0,
  matchRate REAL NOT NULL DEFAULT 0,
  state TEXT NOT NULL DEFAULT 'PENDING',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS comparison_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  catalogId INTEGER,
  productName TEXT NOT NULL,
  pricesJson TEXT NOT NULL,
  bestSupplier TEXT NOT NULL,
  bestPrice REAL NOT NULL,
  spreadPct REAL NOT NULL,
  anomaly TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES comparison_runs(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// --- price lists ---

func (d *DB) CreatePriceList(list internal.PriceList) (internal.PriceList, error) {
	res, err := d.conn.Exec(`
INSERT INTO price_lists (companyId, supplierName, listDate, currency, exchangeRate, sourceRef, sourceFormat, state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, list.CompanyID, list.SupplierName, list.ListDate, string(list.Currency), list.ExchangeRate, list.SourceRef, string(list.SourceFormat), string(internal.ListPending))
	if err != nil {
		return internal.PriceList{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.PriceList{}, err
	}
	row, err := d.GetPriceList(int(id))
	if err != nil {
		return internal.PriceList{}, err
	}
	if row == nil {
		return internal.PriceList{}, errors.New("failed to create price list")
	}
	return *row, nil
}

const priceListColumns = `id, companyId, supplierName, listDate, currency, exchangeRate, sourceRef, sourceFormat, state, productCount, errorMessage, createdAt, updatedAt`

func scanPriceList(scan func(...any) error) (internal.PriceList, error) {
	var row internal.PriceList
	var currency, format, state string
	err := scan(
		&row.ID, &row.CompanyID, &row.SupplierName, &row.ListDate, &currency, &row.ExchangeRate,
		&row.SourceRef, &format, &state, &row.ProductCount, &row.ErrorMessage, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return internal.PriceList{}, err
	}
	row.Currency = internal.Currency(currency)
	row.SourceFormat = internal.SourceFormat(format)
	row.State = internal.ListState(state)
	return row, nil
}

func (d *DB) GetPriceList(id int) (*internal.PriceList, error) {
	row, err := scanPriceList(d.conn.QueryRow(`SELECT `+priceListColumns+` FROM price_lists WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type ListFilter struct {
	State    internal.ListState
	Supplier string
	Limit    int
}

func (d *DB) ListPriceLists(companyID string, filter ListFilter) ([]internal.PriceList, error) {
	// an empty companyID lists across companies, for daemon-style callers
	query := `SELECT ` + priceListColumns + ` FROM price_lists WHERE 1=1`
	args := []any{}
	if companyID != "" {
		query += ` AND companyId = ?`
		args = append(args, companyID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if strings.TrimSpace(filter.Supplier) != "" {
		query += ` AND supplierName = ?`
		args = append(args, filter.Supplier)
	}
	query += ` ORDER BY createdAt ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PriceList
	for rows.Next() {
		row, err := scanPriceList(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ClaimProcessing is the optimistic state-check-and-set that guards against
// two processors operating on the same list: PROCESSING is only granted from
// PENDING or ERROR, and is persisted before any extraction call.
func (d *DB) ClaimProcessing(listID int) (bool, error) {
	res, err := d.conn.Exec(`
UPDATE price_lists SET state = ?, errorMessage = NULL, updatedAt = CURRENT_TIMESTAMP
WHERE id = ? AND state IN (?, ?)
`, string(internal.ListProcessing), listID, string(internal.ListPending), string(internal.ListError))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (d *DB) FinishProcessing(listID int, state internal.ListState, productCount int, errorMessage string) error {
	var msg *string
	if strings.TrimSpace(errorMessage) != "" {
		msg = &errorMessage
	}
	_, err := d.conn.Exec(`
UPDATE price_lists SET state = ?, productCount = ?, errorMessage = ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(state), productCount, msg, listID)
	return err
}

// DeletePriceList removes the list and its dependent records (cascade).
func (d *DB) DeletePriceList(listID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM list_records WHERE listId = ?`, listID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM price_lists WHERE id = ?`, listID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- list records ---

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (d *DB) InsertListRecord(rec internal.ListRecord) (int, error) {
	if strings.TrimSpace(rec.NormalizedName) == "" {
		return 0, ErrEmptyName
	}
	if rec.UnitPrice < 0 {
		return 0, fmt.Errorf("record %q has negative price", rec.OriginalName)
	}

	res, err := d.conn.Exec(`
INSERT INTO list_records (listId, originalCode, originalName, normalizedName, packaging, unit, unitPrice, currency, brand, confidence, catalogId)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, rec.ListID, rec.OriginalCode, rec.OriginalName, rec.NormalizedName, rec.Packaging, rec.Unit,
		rec.UnitPrice, string(rec.Currency), rec.Brand, clampConfidence(rec.Confidence), rec.CatalogID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// ClearListRecords removes prior extraction output so reprocessing a list
// starts clean instead of accumulating duplicates.
func (d *DB) ClearListRecords(listID int) error {
	_, err := d.conn.Exec(`DELETE FROM list_records WHERE listId = ?`, listID)
	return err
}

const listRecordColumns = `id, listId, originalCode, originalName, normalizedName, packaging, unit, unitPrice, currency, brand, confidence, catalogId`

func scanListRecord(scan func(...any) error) (internal.ListRecord, error) {
	var rec internal.ListRecord
	var currency string
	err := scan(
		&rec.ID, &rec.ListID, &rec.OriginalCode, &rec.OriginalName, &rec.NormalizedName,
		&rec.Packaging, &rec.Unit, &rec.UnitPrice, &currency, &rec.Brand, &rec.Confidence, &rec.CatalogID,
	)
	if err != nil {
		return internal.ListRecord{}, err
	}
	rec.Currency = internal.Currency(currency)
	return rec, nil
}

func (d *DB) ListRecordsByList(listID int) ([]internal.ListRecord, error) {
	rows, err := d.conn.Query(`SELECT `+listRecordColumns+` FROM list_records WHERE listId = ? ORDER BY id ASC`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ListRecord
	for rows.Next() {
		rec, err := scanListRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) SetRecordCatalog(recordID, catalogID int) error {
	_, err := d.conn.Exec(`UPDATE list_records SET catalogId = ? WHERE id = ?`, catalogID, recordID)
	return err
}

func (d *DB) CountRecordsByList(listID int) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM list_records WHERE listId = ?`, listID).Scan(&n)
	return n, err
}

// --- catalog ---

const catalogColumns = `id, companyId, code, canonicalName, altNamesJson, packaging, unit, category, brand, active`

func scanCatalogEntry(scan func(...any) error) (internal.CatalogEntry, error) {
	var e internal.CatalogEntry
	var altJSON string
	var active int
	err := scan(&e.ID, &e.CompanyID, &e.Code, &e.CanonicalName, &altJSON, &e.Packaging, &e.Unit, &e.Category, &e.Brand, &active)
	if err != nil {
		return internal.CatalogEntry{}, err
	}
	_ = json.Unmarshal([]byte(altJSON), &e.AlternateNames)
	e.Active = active != 0
	return e, nil
}

func (d *DB) GetCatalogEntry(id int) (*internal.CatalogEntry, error) {
	row, err := scanCatalogEntry(d.conn.QueryRow(`SELECT `+catalogColumns+` FROM catalog_entries WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetCatalogByCode resolves a company-scoped code match, case-insensitive.
func (d *DB) GetCatalogByCode(companyID, code string) (*internal.CatalogEntry, error) {
	row, err := scanCatalogEntry(d.conn.QueryRow(`
SELECT `+catalogColumns+` FROM catalog_entries
WHERE companyId = ? AND UPPER(code) = UPPER(?) AND active = 1
`, companyID, code).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListRecentCatalog returns the bounded recent subset scanned by the local
// fallback matching tier.
func (d *DB) ListRecentCatalog(companyID string, limit int) ([]internal.CatalogEntry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := d.conn.Query(`
SELECT `+catalogColumns+` FROM catalog_entries
WHERE companyId = ? AND active = 1 ORDER BY updatedAt DESC, id DESC LIMIT ?
`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) InsertCatalogEntry(e internal.CatalogEntry) (internal.CatalogEntry, error) {
	altJSON, _ := json.Marshal(dedupeStrings(e.AlternateNames))
	res, err := d.conn.Exec(`
INSERT INTO catalog_entries (companyId, code, canonicalName, altNamesJson, packaging, unit, category, brand, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
`, e.CompanyID, e.Code, e.CanonicalName, string(altJSON), e.Packaging, e.Unit, e.Category, e.Brand)
	if err != nil {
		return internal.CatalogEntry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.CatalogEntry{}, err
	}
	row, err := d.GetCatalogEntry(int(id))
	if err != nil {
		return internal.CatalogEntry{}, err
	}
	if row == nil {
		return internal.CatalogEntry{}, errors.New("failed to insert catalog entry")
	}
	return *row, nil
}

// AppendAlternateNames is the append-only read-modify-write accumulation of
// raw names observed for a catalog entry. Last writer wins, guarded by the
// single-writer-per-company assumption of the processing model.
func (d *DB) AppendAlternateNames(catalogID int, names ...string) (*internal.CatalogEntry, error) {
	entry, err := d.GetCatalogEntry(catalogID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("catalog entry %d not found", catalogID)
	}

	merged := dedupeStrings(append(entry.AlternateNames, names...))
	if len(merged) == len(entry.AlternateNames) {
		return entry, nil
	}
	altJSON, _ := json.Marshal(merged)
	if _, err := d.conn.Exec(`
UPDATE catalog_entries SET altNamesJson = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?
`, string(altJSON), catalogID); err != nil {
		return nil, err
	}
	entry.AlternateNames = merged
	return entry, nil
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// --- comparison runs ---

func (d *DB) CreateComparisonRun(companyID string, listIDs []int) (internal.ComparisonRun, error) {
	idsJSON, _ := json.Marshal(listIDs)
	res, err := d.conn.Exec(`
INSERT INTO comparison_runs (companyId, listIdsJson, state) VALUES (?, ?, ?)
`, companyID, string(idsJSON), string(internal.RunPending))
	if err != nil {
		return internal.ComparisonRun{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.ComparisonRun{}, err
	}
	run, err := d.GetComparisonRun(int(id))
	if err != nil {
		return internal.ComparisonRun{}, err
	}
	if run == nil {
		return internal.ComparisonRun{}, errors.New("failed to create comparison run")
	}
	return *run, nil
}

func (d *DB) GetComparisonRun(id int) (*internal.ComparisonRun, error) {
	var run internal.ComparisonRun
	var idsJSON, state string
	err := d.conn.QueryRow(`
SELECT id, companyId, listIdsJson, totalCompared, matched, matchRate, state, createdAt
FROM comparison_runs WHERE id = ?
`, id).Scan(&run.ID, &run.CompanyID, &idsJSON, &run.TotalCompared, &run.Matched, &run.MatchRate, &state, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(idsJSON), &run.ListIDs)
	run.State = internal.RunState(state)
	return &run, nil
}

func (d *DB) UpdateComparisonRunState(id int, state internal.RunState) error {
	_, err := d.conn.Exec(`
UPDATE comparison_runs SET state = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?
`, string(state), id)
	return err
}

func (d *DB) FinishComparisonRun(id int, totalCompared, matched int, matchRate float64, state internal.RunState) error {
	_, err := d.conn.Exec(`
UPDATE comparison_runs SET totalCompared = ?, matched = ?, matchRate = ?, state = ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, totalCompared, matched, matchRate, string(state), id)
	return err
}

func (d *DB) InsertComparisonResult(result internal.ComparisonResult) (int, error) {
	pricesJSON, _ := json.Marshal(result.Prices)
	res, err := d.conn.Exec(`
INSERT INTO comparison_results (runId, catalogId, productName, pricesJson, bestSupplier, bestPrice, spreadPct, anomaly)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, result.RunID, result.CatalogID, result.ProductName, string(pricesJSON), result.Best.SupplierName, result.Best.Amount, result.SpreadPct, result.Anomaly)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func (d *DB) ListComparisonResults(runID int) ([]internal.ComparisonResult, error) {
	rows, err := d.conn.Query(`
SELECT id, runId, catalogId, productName, pricesJson, bestSupplier, bestPrice, spreadPct, anomaly
FROM comparison_results WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ComparisonResult
	for rows.Next() {
		var r internal.ComparisonResult
		var pricesJSON string
		if err := rows.Scan(&r.ID, &r.RunID, &r.CatalogID, &r.ProductName, &pricesJSON, &r.Best.SupplierName, &r.Best.Amount, &r.SpreadPct, &r.Anomaly); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(pricesJSON), &r.Prices)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- metadata ---

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
