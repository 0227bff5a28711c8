package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/parser"
	"github.com/gocolly/colly/v2"
	"github.com/tidwall/gjson"
)

// FeedExtractor reads products from a structured JSON product feed. Keys in
// the feed config are gjson paths, so nested fields use dotted notation.
type FeedExtractor struct {
	collectors collectorFactory
}

// NewFeedExtractor builds a feed extractor. A nil transport uses colly's default.
func NewFeedExtractor(userAgent string, transport http.RoundTripper) *FeedExtractor {
	return &FeedExtractor{collectors: collectorFactory{userAgent: userAgent, transport: transport}}
}

// Extract fetches the feed at pageURL and returns one result per item.
func (x *FeedExtractor) Extract(ctx context.Context, site *config.SiteConfig, pageURL string) ([]models.RecordResult, error) {
	c, status := x.collectors.new(ctx)

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	if err := c.Visit(pageURL); err != nil {
		return nil, status.visitError(err)
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrExtraction{Err: fmt.Errorf("invalid JSON feed at %s", pageURL)}
	}
	items := gjson.GetBytes(body, site.Feed.ItemsKey)
	if !items.IsArray() {
		return nil, ErrExtraction{Err: fmt.Errorf("feed at %s has no %q list", pageURL, site.Feed.ItemsKey)}
	}

	var results []models.RecordResult
	items.ForEach(func(_, item gjson.Result) bool {
		results = append(results, feedRecord(site, pageURL, item))
		return true
	})
	return results, nil
}

func feedRecord(site *config.SiteConfig, pageURL string, item gjson.Result) models.RecordResult {
	f := site.Feed
	name := parser.CleanName(item.Get(f.TitleKey).String())
	href := strings.TrimSpace(item.Get(f.URLKey).String())
	if name == "" || href == "" {
		return models.Err[models.RawProductRecord](ErrExtraction{Err: fmt.Errorf("feed item without name or url at %s", pageURL)})
	}

	base := f.BaseURL
	if base == "" {
		base = site.BaseURL
	}

	return models.Ok(models.RawProductRecord{
		Name:            name,
		URL:             parser.ResolveLink(base, pageURL, href),
		Price:           feedPrice(item, f.PriceKey),
		Availability:    feedAvailability(item, f, site.ForceAvailable),
		SiteName:        site.Name,
		ForcedAvailable: site.ForceAvailable,
	})
}

// feedPrice accepts a plain number, a string, or an object carrying a
// "price" field. Fractions are truncated.
func feedPrice(item gjson.Result, key string) string {
	price := item.Get(key)
	if price.IsObject() {
		price = price.Get("price")
	}
	switch price.Type {
	case gjson.Number:
		return strconv.FormatInt(price.Int(), 10)
	case gjson.String:
		if s := strings.TrimSpace(price.String()); s != "" {
			return s
		}
	}
	if text := strings.TrimSpace(item.Get("priceText").String()); text != "" {
		return text
	}
	return "unknown"
}

func feedAvailability(item gjson.Result, f config.FeedConfig, forced bool) models.Availability {
	if forced {
		return models.InStock
	}
	if n, ok := stockCount(item.Get(f.StockKey)); ok && n > 0 {
		return models.InStock
	}
	if item.Get(f.PreorderKey).Bool() {
		return models.Preorderable
	}
	return models.SoldOut
}

func stockCount(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
