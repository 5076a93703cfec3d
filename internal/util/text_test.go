package util

import "testing"

func TestNormalizeNameConvergence(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
	}{
		{name: "packaging and size", a: "Café Especial 500 GR Caja", b: "café especial caja"},
		{name: "glued unit", a: "CAFE ESPECIAL 500GR", b: "Cafe Especial"},
		{name: "punctuation noise", a: "Leche, «Completa» 1 LT", b: "leche completa"},
		{name: "count words", a: "Azúcar Refinada 24 Unidades Bulto", b: "azucar refinada"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := NormalizeName(tc.a), NormalizeName(tc.b); got != want {
				t.Fatalf("%q -> %q, %q -> %q", tc.a, got, tc.b, want)
			}
		})
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	inputs := []string{"Café Especial 500 GR Caja", "LECHE COMPLETA 1 LT", "", "  ", "Arroz Tipo I 1Kg Paquete"}
	for _, in := range inputs {
		once := NormalizeName(in)
		if twice := NormalizeName(once); twice != once {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeNameEmpty(t *testing.T) {
	if got := NormalizeName("500 GR 24"); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode(" cf-0051 "); got != "CF-0051" {
		t.Fatalf("got %q", got)
	}
}

func TestScoreNamesOrdering(t *testing.T) {
	query := NormalizeName("Café Especial")
	close := NormalizeName("Cafe Especial Tostado")
	far := NormalizeName("Detergente Líquido")
	if ScoreNames(query, close) <= ScoreNames(query, far) {
		t.Fatalf("expected %q to outscore %q", close, far)
	}
	if ScoreNames(query, query) < 0.999 {
		t.Fatalf("self score below 1")
	}
}
