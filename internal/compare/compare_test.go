package compare

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/docstore"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/extract"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/match"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/pipeline"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

// scriptedGen replays a fixed sequence of model replies and keeps
// repeating the last one.
type scriptedGen struct {
	replies []string
	calls   int
}

func (g *scriptedGen) Generate(context.Context, string, string, *ai.Media) (string, int, error) {
	g.calls++
	if len(g.replies) == 0 {
		return "", 0, errors.New("no scripted reply")
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, 100, nil
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newComparator(db *storage.DB, gen ai.Generator) *Comparator {
	engine := match.NewEngine(db, nil, gen, "gemini-1.5-flash", 0.70, 500)
	return NewComparator(db, engine, 0.70, 50, 40, 0.93)
}

// seedList creates a COMPLETED list with the given records, bypassing
// extraction.
func seedList(t *testing.T, db *storage.DB, supplier string, currency internal.Currency, rate *float64, recs []internal.ListRecord) internal.PriceList {
	t.Helper()
	list, err := db.CreatePriceList(internal.PriceList{
		CompanyID:    "co-1",
		SupplierName: supplier,
		Currency:     currency,
		ExchangeRate: rate,
		SourceRef:    "ref",
		SourceFormat: internal.FormatCSV,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.ClaimProcessing(list.ID); err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		rec.ListID = list.ID
		rec.Currency = currency
		if rec.NormalizedName == "" {
			rec.NormalizedName = util.NormalizeName(rec.OriginalName)
		}
		if _, err := db.InsertListRecord(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.FinishProcessing(list.ID, internal.ListCompleted, len(recs), ""); err != nil {
		t.Fatal(err)
	}
	return list
}

func catRec(name string, price float64, catalogID *int) internal.ListRecord {
	return internal.ListRecord{OriginalName: name, UnitPrice: price, Confidence: 90, CatalogID: catalogID}
}

func TestCompareEndToEndCSV(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gen := &scriptedGen{replies: []string{
		`[{"name":"Café Especial","packaging":"500GR","price":12.50,"confidence":90}]`,
		`[{"name":"CAFE ESPECIAL 500 GR","price":12.80,"confidence":90}]`,
		"0.95",
	}}
	docs := docstore.New(filepath.Join(dir, "files"))
	gateway := extract.NewGateway(gen, "gemini-1.5-flash", 85, 12000, false)
	engine := match.NewEngine(db, nil, gen, "gemini-1.5-flash", 0.70, 500)
	uploader := pipeline.NewUploader(db, docs)
	processor := pipeline.NewProcessor(db, docs, gateway, engine, 0.00015)
	comparator := NewComparator(db, engine, 0.70, 50, 40, 0.93)

	upload := func(supplier, filename string) internal.PriceList {
		list, err := uploader.Upload(pipeline.UploadRequest{
			CompanyID: "co-1", SupplierName: supplier, Currency: internal.CurrencyUSD,
			Format: internal.FormatCSV, Filename: filename,
			Blob: []byte("producto,empaque,precio\n" + supplier + "\n"),
		})
		if err != nil {
			t.Fatal(err)
		}
		return list
	}

	listA := upload("Distribuidora A", "a.csv")
	listB := upload("Distribuidora B", "b.csv")
	ctx := context.Background()
	if _, err := processor.ProcessList(ctx, listA.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := processor.ProcessList(ctx, listB.ID); err != nil {
		t.Fatal(err)
	}

	run, results, err := comparator.Compare(ctx, "co-1", []int{listA.ID, listB.ID})
	if err != nil {
		t.Fatal(err)
	}
	if run.State != internal.RunDone || run.MatchRate != 1.0 {
		t.Fatalf("run=%+v", run)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d", len(results))
	}

	result := results[0]
	if len(result.Prices) != 2 {
		t.Fatalf("prices=%d", len(result.Prices))
	}
	if result.Best.SupplierName != "Distribuidora A" || result.Best.Amount != 12.50 {
		t.Fatalf("best=%+v", result.Best)
	}
	if math.Abs(result.SpreadPct-2.34375) > 0.01 {
		t.Fatalf("spread=%v", result.SpreadPct)
	}
	if result.CatalogID == nil {
		t.Fatal("matched group created no catalog entry")
	}

	// both records now carry the shared catalog id
	for _, listID := range []int{listA.ID, listB.ID} {
		recs, err := db.ListRecordsByList(listID)
		if err != nil {
			t.Fatal(err)
		}
		if recs[0].CatalogID == nil || *recs[0].CatalogID != *result.CatalogID {
			t.Fatalf("list %d record catalogId=%v", listID, recs[0].CatalogID)
		}
	}
}

func TestCompareCatalogJoinSkipsAI(t *testing.T) {
	db := openTestDB(t)
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: "co-1", Code: "CF-01", CanonicalName: "Café Especial", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	listA := seedList(t, db, "A", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Café Especial 500 GR", 12.50, &entry.ID),
	})
	listB := seedList(t, db, "B", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("CAFE ESPECIAL", 12.80, &entry.ID),
	})

	gen := &scriptedGen{replies: []string{"0.0"}}
	comparator := newComparator(db, gen)

	_, results, err := comparator.Compare(context.Background(), "co-1", []int{listA.ID, listB.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d", len(results))
	}
	if gen.calls != 0 {
		t.Fatalf("catalog join still made %d AI calls", gen.calls)
	}
}

func TestCompareThreeListsSingleton(t *testing.T) {
	db := openTestDB(t)
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: "co-1", Code: "CF-01", CanonicalName: "Café Especial", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	listA := seedList(t, db, "A", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Café Especial", 12.50, &entry.ID),
		catRec("Azúcar Morena 1 KG", 2.10, nil),
	})
	listB := seedList(t, db, "B", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Cafe Especial 500GR", 12.80, &entry.ID),
	})
	listC := seedList(t, db, "C", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("CAFE ESPECIAL", 12.20, &entry.ID),
	})

	// nothing resembling the sugar exists in B or C
	gen := &scriptedGen{replies: []string{"0.1"}}
	comparator := newComparator(db, gen)

	run, results, err := comparator.Compare(context.Background(), "co-1", []int{listA.ID, listB.ID, listC.ID})
	if err != nil {
		t.Fatal(err)
	}
	if run.TotalCompared != 2 || run.Matched != 1 {
		t.Fatalf("run=%+v", run)
	}
	if run.MatchRate >= 1.0 {
		t.Fatalf("matchRate=%v", run.MatchRate)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d", len(results))
	}
	if len(results[0].Prices) != 3 {
		t.Fatalf("prices=%d", len(results[0].Prices))
	}
	if results[0].Best.SupplierName != "C" {
		t.Fatalf("best=%+v", results[0].Best)
	}
}

func TestCompareConsumesRecordsOnce(t *testing.T) {
	db := openTestDB(t)
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: "co-1", Code: "CF-01", CanonicalName: "Café Especial", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	// the anchor quotes the same product twice; the other list only once
	listA := seedList(t, db, "A", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Café Especial", 12.50, &entry.ID),
		catRec("Café Especial Oferta", 11.90, &entry.ID),
	})
	listB := seedList(t, db, "B", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Cafe Especial", 12.80, &entry.ID),
	})

	gen := &scriptedGen{replies: []string{"0.0"}}
	run, results, err := newComparator(db, gen).Compare(context.Background(), "co-1", []int{listA.ID, listB.ID})
	if err != nil {
		t.Fatal(err)
	}
	if run.TotalCompared != 2 || run.Matched != 1 {
		t.Fatalf("run=%+v", run)
	}
	if len(results) != 1 {
		t.Fatalf("the B record paired with %d anchors", len(results))
	}

	seen := map[int]bool{}
	for _, p := range results[0].Prices {
		if seen[p.RecordID] {
			t.Fatalf("record %d appears twice", p.RecordID)
		}
		seen[p.RecordID] = true
	}
}

func TestCompareNormalizesVES(t *testing.T) {
	db := openTestDB(t)
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: "co-1", Code: "CF-01", CanonicalName: "Café Especial", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rate := 36.5
	listA := seedList(t, db, "A", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Café Especial", 12.50, &entry.ID),
	})
	listB := seedList(t, db, "B", internal.CurrencyVES, &rate, []internal.ListRecord{
		catRec("Cafe Especial", 456.25, &entry.ID),
	})

	_, results, err := newComparator(db, &scriptedGen{replies: []string{"0.0"}}).
		Compare(context.Background(), "co-1", []int{listA.ID, listB.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d", len(results))
	}

	var vesPrice *internal.SupplierPrice
	for i, p := range results[0].Prices {
		if p.Currency == internal.CurrencyVES {
			vesPrice = &results[0].Prices[i]
		}
	}
	if vesPrice == nil {
		t.Fatal("no VES price in group")
	}
	if math.Abs(vesPrice.PriceUSD-12.50) > 1e-9 {
		t.Fatalf("priceUSD=%v", vesPrice.PriceUSD)
	}
	// 456.25 VES at 36.5 is exactly the USD quote, so no spread
	if results[0].SpreadPct > 1e-9 {
		t.Fatalf("spread=%v", results[0].SpreadPct)
	}
}

func TestCompareFlagsAbnormalRise(t *testing.T) {
	db := openTestDB(t)
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: "co-1", Code: "AC-01", CanonicalName: "Aceite de Maíz", Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	listA := seedList(t, db, "A", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Aceite de Maíz", 10.00, &entry.ID),
	})
	listB := seedList(t, db, "B", internal.CurrencyUSD, nil, []internal.ListRecord{
		catRec("Aceite de Maiz 1L", 22.00, &entry.ID),
	})

	_, results, err := newComparator(db, &scriptedGen{replies: []string{"0.0"}}).
		Compare(context.Background(), "co-1", []int{listA.ID, listB.ID})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Anomaly == nil || *results[0].Anomaly != internal.AnomalyAbnormalRise {
		t.Fatalf("anomaly=%v", results[0].Anomaly)
	}
	if math.Abs(results[0].SpreadPct-(22.0-10.0)/22.0*100) > 1e-9 {
		t.Fatalf("spread=%v", results[0].SpreadPct)
	}
}

func TestCompareValidation(t *testing.T) {
	db := openTestDB(t)
	comparator := newComparator(db, &scriptedGen{replies: []string{"0"}})
	ctx := context.Background()

	if _, _, err := comparator.Compare(ctx, "co-1", []int{1}); err == nil {
		t.Fatal("single list accepted")
	}

	pending, err := db.CreatePriceList(internal.PriceList{
		CompanyID: "co-1", SupplierName: "X", Currency: internal.CurrencyUSD,
		SourceRef: "r", SourceFormat: internal.FormatCSV,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := seedList(t, db, "Y", internal.CurrencyUSD, nil, nil)

	if _, _, err := comparator.Compare(ctx, "co-1", []int{pending.ID, done.ID}); err == nil {
		t.Fatal("PENDING list accepted")
	}
	if _, _, err := comparator.Compare(ctx, "co-2", []int{done.ID, pending.ID}); err == nil {
		t.Fatal("cross-company comparison accepted")
	}
}

func TestComputeStats(t *testing.T) {
	a1 := internal.AnomalyAbnormalRise
	results := []internal.ComparisonResult{
		{Best: internal.BestPrice{SupplierName: "A"}, SpreadPct: 10},
		{Best: internal.BestPrice{SupplierName: "A"}, SpreadPct: 2},
		// exactly at the floor: noise, not a saving
		{Best: internal.BestPrice{SupplierName: "A"}, SpreadPct: 5},
		{Best: internal.BestPrice{SupplierName: "B"}, SpreadPct: 60, Anomaly: &a1},
	}
	run := internal.ComparisonRun{TotalCompared: 5, Matched: 4}

	stats := ComputeStats(run, results, 5)
	if stats.WithSavings != 2 {
		t.Fatalf("withSavings=%d", stats.WithSavings)
	}
	if stats.Anomalies != 1 {
		t.Fatalf("anomalies=%d", stats.Anomalies)
	}
	if stats.BestSupplier != "A" || math.Abs(stats.BestSupplierShare-0.75) > 1e-9 {
		t.Fatalf("best=%s share=%v", stats.BestSupplier, stats.BestSupplierShare)
	}
	if math.Abs(stats.AvgSpreadPct-19.25) > 1e-9 {
		t.Fatalf("avgSpread=%v", stats.AvgSpreadPct)
	}
}
