package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/parser"
	"github.com/gocolly/colly/v2"
)

// HTMLExtractor reads product listings from server-rendered pages using the
// site's CSS selectors.
type HTMLExtractor struct {
	collectors collectorFactory
}

// NewHTMLExtractor builds an extractor. A nil transport uses colly's default.
func NewHTMLExtractor(userAgent string, transport http.RoundTripper) *HTMLExtractor {
	return &HTMLExtractor{collectors: collectorFactory{userAgent: userAgent, transport: transport}}
}

// Extract visits pageURL and returns one result per product element.
func (x *HTMLExtractor) Extract(ctx context.Context, site *config.SiteConfig, pageURL string) ([]models.RecordResult, error) {
	c, status := x.collectors.new(ctx)

	var results []models.RecordResult
	c.OnHTML(site.Selectors.Product, func(e *colly.HTMLElement) {
		results = append(results, x.record(c, site, e))
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, status.visitError(err)
	}
	return results, nil
}

func (x *HTMLExtractor) record(c *colly.Collector, site *config.SiteConfig, e *colly.HTMLElement) models.RecordResult {
	sel := site.Selectors
	pageURL := e.Request.URL.String()

	name := e.Text
	if sel.Name != "" {
		name = e.DOM.Find(sel.Name).First().Text()
	}
	name = parser.CleanName(name)
	if name == "" {
		return models.Err[models.RawProductRecord](ErrExtraction{Err: fmt.Errorf("product without name on %s", pageURL)})
	}

	price := ""
	if sel.Price != "" {
		price = parser.NormalizePrice(e.DOM.Find(sel.Price).First().Text())
	}

	link := parser.ResolveLink(site.BaseURL, pageURL, linkHref(e.DOM, sel.Link))

	availability := detectAvailability(e.DOM, site)
	switch {
	case sel.Preorder != "" && e.DOM.Find(sel.Preorder).Length() > 0:
		availability = models.Preorderable
	case sel.CheckProductPage && sel.NotReleased != "" && sel.BuyButton != "" && e.DOM.Find(sel.NotReleased).Length() > 0:
		if x.productPageHasBuyButton(c, sel.BuyButton, link) {
			availability = models.Preorderable
		} else if !site.ForceAvailable {
			availability = models.SoldOut
		}
	}

	return models.Ok(models.RawProductRecord{
		Name:            name,
		URL:             link,
		Price:           price,
		Availability:    availability,
		SiteName:        site.Name,
		ForcedAvailable: site.ForceAvailable,
	})
}

// productPageHasBuyButton opens a not-yet-released product's own page and
// reports whether it can already be ordered.
func (x *HTMLExtractor) productPageHasBuyButton(c *colly.Collector, buyButton, link string) bool {
	detail := c.Clone()
	found := false
	detail.OnHTML(buyButton, func(*colly.HTMLElement) {
		found = true
	})
	if err := detail.Visit(link); err != nil {
		slog.Debug("product page check failed", slog.String("url", link), slog.Any("error", err))
		return false
	}
	return found
}

// detectAvailability reads the stock signal from a product element.
func detectAvailability(product *goquery.Selection, site *config.SiteConfig) models.Availability {
	if site.ForceAvailable {
		return models.InStock
	}
	sel := site.Selectors

	if sel.InStock != "" && anyText(product.Find(sel.InStock), parser.InStockWords) {
		return models.InStock
	}

	if sel.OutOfStock != "" {
		matches := product.Find(sel.OutOfStock)
		if anyText(matches, parser.SplitList(sel.OutOfStockText)) {
			return models.SoldOut
		}
		if matches.Length() == 0 && sel.AssumeInStock {
			return models.InStock
		}
	}
	return models.Unknown
}

func anyText(s *goquery.Selection, phrases []string) bool {
	found := false
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if parser.ContainsAny(elementText(el), phrases) {
			found = true
			return false
		}
		return true
	})
	return found
}

// elementText prefers the first span inside el, where shops tend to put the
// status label.
func elementText(el *goquery.Selection) string {
	if span := el.Find("span").First(); span.Length() > 0 {
		return strings.TrimSpace(span.Text())
	}
	return strings.TrimSpace(el.Text())
}

func linkHref(product *goquery.Selection, selector string) string {
	if selector != "" {
		href, _ := product.Find(selector).First().Attr("href")
		return href
	}
	if href, ok := product.Attr("href"); ok {
		return href
	}
	href, _ := product.Find("a[href]").First().Attr("href")
	return href
}
