package parser

import (
	"testing"

	"github.com/aluiziolira/stockwatch/models"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *models.RawProductRecord
		wantErr bool
	}{
		{
			name: "valid record",
			record: &models.RawProductRecord{
				Name:     "Booster Box",
				URL:      "https://shop.test/p/1",
				SiteName: "Shop",
			},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
		},
		{
			name: "missing name",
			record: &models.RawProductRecord{
				Name:     "   ",
				URL:      "https://shop.test/p/1",
				SiteName: "Shop",
			},
			wantErr: true,
		},
		{
			name: "missing url",
			record: &models.RawProductRecord{
				Name:     "Booster Box",
				SiteName: "Shop",
			},
			wantErr: true,
		},
		{
			name: "missing site",
			record: &models.RawProductRecord{
				Name: "Booster Box",
				URL:  "https://shop.test/p/1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "surrounding whitespace", input: "  499 kr  ", expected: "499 kr"},
		{name: "inner newlines", input: "1 299\n kr", expected: "1 299 kr"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePrice(tt.input); got != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		page    string
		href    string
		want    string
	}{
		{
			name: "absolute link",
			page: "https://shop.test/list?page=2",
			href: "https://cdn.shop.test/p/1?ref=list",
			want: "https://cdn.shop.test/p/1",
		},
		{
			name: "relative with base",
			base: "https://shop.test/",
			page: "https://shop.test/list",
			href: "/products/etb",
			want: "https://shop.test/products/etb",
		},
		{
			name: "relative against page",
			page: "https://shop.test/category/cards/list.html",
			href: "../p/etb.html#reviews",
			want: "https://shop.test/category/p/etb.html",
		},
		{
			name: "missing href falls back to page",
			page: "https://shop.test/list?page=3",
			want: "https://shop.test/list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveLink(tt.base, tt.page, tt.href); got != tt.want {
				t.Errorf("ResolveLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("  Lägg i varukorg ", InStockWords) {
		t.Fatalf("expected in-stock phrase to match")
	}
	if ContainsAny("Tillfälligt slut", InStockWords) {
		t.Fatalf("sold out text should not match in-stock words")
	}
	if ContainsAny("anything", []string{"", "  "}) {
		t.Fatalf("blank phrases must not match")
	}
	if ContainsAny("", []string{"x"}) {
		t.Fatalf("empty text must not match")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" slutsåld, ,Tillfälligt slut ,")
	if len(got) != 2 || got[0] != "slutsåld" || got[1] != "Tillfälligt slut" {
		t.Fatalf("SplitList = %v", got)
	}
}

func TestKeywordFilter(t *testing.T) {
	f, err := NewKeywordFilter([]string{"Pokémon", "Pokemon", "Black Bolt"}, []string{"Deck Box", "Binder"})
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	tests := []struct {
		name string
		want bool
	}{
		{name: "Pokemon Black Bolt Elite Trainer Box", want: true},
		{name: "POKÉMON booster bundle", want: true},
		{name: "Pokemon Deck Box Red", want: false},
		{name: "Magic Booster", want: false},
	}
	for _, tt := range tests {
		if got := f.Match(tt.name); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKeywordFilterEmptyAcceptsAll(t *testing.T) {
	f, err := NewKeywordFilter(nil, []string{"binder"})
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if !f.Match("anything at all") {
		t.Fatalf("empty keyword list should accept")
	}
	if f.Match("Card Binder") {
		t.Fatalf("blocked keyword should still reject")
	}
	var nilFilter *KeywordFilter
	if !nilFilter.Match("x") {
		t.Fatalf("nil filter should accept")
	}
}

func TestKeywordFilterInvalidPattern(t *testing.T) {
	if _, err := NewKeywordFilter([]string{"("}, nil); err == nil {
		t.Fatalf("expected compile error")
	}
}
