package util

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "12.50", want: 12.50},
		{name: "decimal comma", input: "12,50", want: 12.50},
		{name: "latin thousands", input: "1.234,56", want: 1234.56},
		{name: "us thousands", input: "1,234.56", want: 1234.56},
		{name: "thousand dot only", input: "1.000", want: 1000},
		{name: "currency prefix", input: "Bs. 36,50", want: 36.50},
		{name: "dollar prefix", input: "$4.99", want: 4.99},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParsePrice(tc.input)
			if !ok {
				t.Fatalf("no price parsed from %q", tc.input)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "consultar", "-"} {
		if _, ok := ParsePrice(in); ok {
			t.Fatalf("expected failure for %q", in)
		}
	}
}
