package match

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/search"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/storage"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedEntry(t *testing.T, db *storage.DB, company, code, name string, alts ...string) internal.CatalogEntry {
	t.Helper()
	entry, err := db.InsertCatalogEntry(internal.CatalogEntry{
		CompanyID: company, Code: code, CanonicalName: name, AlternateNames: alts, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

type fakeIndex struct {
	hits []search.Hit
	err  error
}

func (f *fakeIndex) Query(context.Context, string, string) ([]search.Hit, error) {
	return f.hits, f.err
}

func (f *fakeIndex) Index(context.Context, internal.CatalogEntry) error { return nil }

type fakePairGen struct{ reply string }

func (f *fakePairGen) Generate(context.Context, string, string, *ai.Media) (string, int, error) {
	return f.reply, 10, nil
}

func rec(code *string, original string) internal.ListRecord {
	return internal.ListRecord{
		OriginalCode:   code,
		OriginalName:   original,
		NormalizedName: util.NormalizeName(original),
	}
}

func TestMatchByCode(t *testing.T) {
	db := openTestDB(t)
	entry := seedEntry(t, db, "co-1", "CF-01", "Café Especial")
	eng := NewEngine(db, nil, nil, "", 0.70, 500)

	code := "cf-01"
	out, err := eng.Match(context.Background(), "co-1", rec(&code, "Café Especial 500 GR"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != entry.ID {
		t.Fatalf("out=%+v", out)
	}
	if out.Confidence != 1.0 || out.Method != MethodCode {
		t.Fatalf("out=%+v", out)
	}
}

func TestMatchIsCompanyScoped(t *testing.T) {
	db := openTestDB(t)
	seedEntry(t, db, "co-1", "CF-01", "Café Especial")
	eng := NewEngine(db, nil, nil, "", 0.70, 500)

	code := "CF-01"
	out, err := eng.Match(context.Background(), "co-2", rec(&code, "Café Especial"))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("matched across companies: %+v", out)
	}
}

func TestMatchViaSearchRescored(t *testing.T) {
	db := openTestDB(t)
	good := seedEntry(t, db, "co-1", "CF-01", "Café Especial")
	far := seedEntry(t, db, "co-1", "DT-09", "Detergente Líquido")
	eng := NewEngine(db, &fakeIndex{hits: []search.Hit{
		// engine relevance order is deliberately wrong; rescoring fixes it
		{CatalogID: far.ID, Name: "detergente liquido", Score: 12.5},
		{CatalogID: good.ID, Name: "cafe especial", Score: 3.1},
	}}, nil, "", 0.70, 500)

	out, err := eng.Match(context.Background(), "co-1", rec(nil, "Café Especial 500 GR"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != good.ID || out.Method != MethodSearch {
		t.Fatalf("out=%+v", out)
	}
	if out.Confidence < 0.70 {
		t.Fatalf("confidence below threshold: %v", out.Confidence)
	}
}

func TestMatchSearchBelowThreshold(t *testing.T) {
	db := openTestDB(t)
	far := seedEntry(t, db, "co-1", "DT-09", "Detergente Líquido")
	eng := NewEngine(db, &fakeIndex{hits: []search.Hit{
		{CatalogID: far.ID, Name: "detergente liquido", Score: 9.0},
	}}, nil, "", 0.70, 500)

	out, err := eng.Match(context.Background(), "co-1", rec(nil, "Café Especial"))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("weak candidate accepted: %+v", out)
	}
}

func TestMatchFallsBackToLocalScan(t *testing.T) {
	db := openTestDB(t)
	entry := seedEntry(t, db, "co-1", "CF-01", "Café Especial", "Café Especial Premium Tostado")
	eng := NewEngine(db, &fakeIndex{err: search.ErrUnavailable}, nil, "", 0.70, 500)

	out, err := eng.Match(context.Background(), "co-1", rec(nil, "Café Especial Premium"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != entry.ID || out.Method != MethodLocal {
		t.Fatalf("out=%+v", out)
	}
}

func TestMatchLocalNormalizedCode(t *testing.T) {
	db := openTestDB(t)
	entry := seedEntry(t, db, "co-1", "CF-01", "Café Especial")
	eng := NewEngine(db, nil, nil, "", 0.70, 500)

	// padded code misses the exact tier; the local scan normalizes it
	code := "  cf-01  "
	out, err := eng.Match(context.Background(), "co-1", rec(&code, "Nombre Totalmente Distinto"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != entry.ID {
		t.Fatalf("out=%+v", out)
	}
	if out.Confidence != 1.0 || out.Method != MethodLocal {
		t.Fatalf("out=%+v", out)
	}
}

func TestMatchLocalExactName(t *testing.T) {
	db := openTestDB(t)
	entry := seedEntry(t, db, "co-1", "CF-01", "Café Especial")
	eng := NewEngine(db, nil, nil, "", 0.70, 500)

	out, err := eng.Match(context.Background(), "co-1", rec(nil, "CAFE ESPECIAL 500GR"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != entry.ID || out.Confidence != 0.95 {
		t.Fatalf("out=%+v", out)
	}
}

func TestPairScoreParsing(t *testing.T) {
	cases := []struct {
		reply string
		want  float64
	}{
		{"0.85", 0.85},
		{"La puntuación es 0,9", 0.9},
		{"1", 1},
		{"Respuesta: 0.3 (productos distintos)", 0.3},
	}
	for _, tc := range cases {
		eng := NewEngine(nil, nil, &fakePairGen{reply: tc.reply}, "m", 0.70, 500)
		got, err := eng.PairScore(context.Background(), "a", "b")
		if err != nil {
			t.Fatalf("%q: %v", tc.reply, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.reply, got, tc.want)
		}
	}

	eng := NewEngine(nil, nil, &fakePairGen{reply: "no lo sé"}, "m", 0.70, 500)
	if _, err := eng.PairScore(context.Background(), "a", "b"); err == nil {
		t.Fatal("prose reply parsed as score")
	}
}

func TestEnsureEntryGeneratesCode(t *testing.T) {
	db := openTestDB(t)
	eng := NewEngine(db, nil, nil, "", 0.70, 500)

	entry, err := eng.EnsureEntry(context.Background(), "co-1", rec(nil, "Producto Nuevo 1 KG"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.Code) != len("CAT-")+8 {
		t.Fatalf("code=%q", entry.Code)
	}
	if entry.CanonicalName != "Producto Nuevo 1 KG" {
		t.Fatalf("canonical=%q", entry.CanonicalName)
	}

	// a second record with the same original code reuses the code match
	code := entry.Code
	out, err := eng.Match(context.Background(), "co-1", rec(&code, "Producto Nuevo"))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.CatalogID != entry.ID {
		t.Fatalf("out=%+v", out)
	}
}
