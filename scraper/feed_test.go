package scraper

import (
	"context"
	"testing"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/jarcoal/httpmock"
)

const feedBody = `{
  "products": [
    {"mainTitle": "Elite Trainer Box", "url": "/p/etb", "price": {"price": 549.9}, "stock": {"web": 3}},
    {"mainTitle": "Booster Box", "url": "/p/booster", "price": "1 299 kr", "stock": {"web": "0"}, "isPreOrderable": true},
    {"mainTitle": "Tin", "url": "https://shop.test/p/tin?x=1", "priceText": "199 kr", "stock": {"web": 0}},
    {"mainTitle": "Bundle", "url": "/p/bundle"},
    {"mainTitle": "", "url": "/p/blank"}
  ]
}`

func feedSite() *config.SiteConfig {
	site := &config.SiteConfig{
		Name: "Shop",
		Feed: config.FeedConfig{
			URL:     "https://shop.test/api/products",
			BaseURL: "https://shop.test",
		},
	}
	site.ApplyDefaults()
	return site
}

func TestFeedExtractorReadsItems(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://shop.test/api/products", httpmock.NewStringResponder(200, feedBody))

	x := NewFeedExtractor("test-agent", transport)
	results, err := x.Extract(context.Background(), feedSite(), "https://shop.test/api/products")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("results=%d, want 5", len(results))
	}

	want := []models.RawProductRecord{
		{Name: "Elite Trainer Box", URL: "https://shop.test/p/etb", Price: "549", Availability: models.InStock, SiteName: "Shop"},
		{Name: "Booster Box", URL: "https://shop.test/p/booster", Price: "1 299 kr", Availability: models.Preorderable, SiteName: "Shop"},
		{Name: "Tin", URL: "https://shop.test/p/tin", Price: "199 kr", Availability: models.SoldOut, SiteName: "Shop"},
		{Name: "Bundle", URL: "https://shop.test/p/bundle", Price: "unknown", Availability: models.SoldOut, SiteName: "Shop"},
	}
	for i, w := range want {
		got, err := results[i].Unwrap()
		if err != nil {
			t.Fatalf("item %d: unexpected error %v", i, err)
		}
		if got != w {
			t.Fatalf("item %d = %+v, want %+v", i, got, w)
		}
	}
	if results[4].IsOk() {
		t.Fatalf("item without title should be an error result")
	}
}

func TestFeedExtractorCustomKeys(t *testing.T) {
	const body = `{"data": {"items": [{"name": "Deck Box", "link": "/d", "cost": 89, "qty": "2"}]}}`
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://shop.test/api/v2", httpmock.NewStringResponder(200, body))

	site := &config.SiteConfig{
		Name: "Shop",
		Feed: config.FeedConfig{
			URL:      "https://shop.test/api/v2",
			BaseURL:  "https://shop.test",
			ItemsKey: "data.items",
			TitleKey: "name",
			URLKey:   "link",
			PriceKey: "cost",
			StockKey: "qty",
		},
	}
	site.ApplyDefaults()

	results, err := NewFeedExtractor("test-agent", transport).Extract(context.Background(), site, "https://shop.test/api/v2")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d, want 1", len(results))
	}
	rec, err := results[0].Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Name != "Deck Box" || rec.Price != "89" || rec.Availability != models.InStock || rec.URL != "https://shop.test/d" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestFeedExtractorRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>maintenance</html>"},
		{name: "missing items", body: `{"other": []}`},
		{name: "items not a list", body: `{"products": {"a": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "https://shop.test/api/products", httpmock.NewStringResponder(200, tt.body))

			_, err := NewFeedExtractor("test-agent", transport).Extract(context.Background(), feedSite(), "https://shop.test/api/products")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errorTypeLabel(err); got != "extraction" {
				t.Fatalf("error type = %q, want extraction", got)
			}
		})
	}
}
