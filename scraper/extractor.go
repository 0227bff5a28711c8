package scraper

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/gocolly/colly/v2"
)

// Extractor turns one page of a site into product record results. A returned
// error means the page as a whole failed; per-record problems are carried in
// the individual results.
type Extractor interface {
	Extract(ctx context.Context, site *config.SiteConfig, pageURL string) ([]models.RecordResult, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, site *config.SiteConfig, pageURL string) ([]models.RecordResult, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, site *config.SiteConfig, pageURL string) ([]models.RecordResult, error) {
	return f(ctx, site, pageURL)
}

// NewTransport returns the pooled HTTP transport shared by the extractors.
func NewTransport(dialTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// collectorFactory builds one synchronous collector per page visit so
// callbacks never leak between concurrent pages.
type collectorFactory struct {
	userAgent string
	transport http.RoundTripper
}

func (f collectorFactory) new(ctx context.Context) (*colly.Collector, *fetchStatus) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			c.SetRequestTimeout(remaining)
		}
	}
	if f.transport != nil {
		c.WithTransport(f.transport)
	}

	status := &fetchStatus{}
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status.code = r.StatusCode
		}
		status.err = err
	})
	return c, status
}

type fetchStatus struct {
	code int
	err  error
}

// visitError classifies the failure of a Visit call.
func (s *fetchStatus) visitError(visitErr error) error {
	err := s.err
	if err == nil {
		err = visitErr
	}
	return classifyError(err, s.code)
}
