package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoURLs is returned when a site does not resolve to any page URL.
var ErrNoURLs = errors.New("no valid url configuration")

// Strategy is the closed set of ways a site expands into page URLs.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategySingle
	StrategyPaged
	StrategyCrossProduct
	StrategyList
	StrategyFeed
)

func (s Strategy) String() string {
	switch s {
	case StrategySingle:
		return "single"
	case StrategyPaged:
		return "paged"
	case StrategyCrossProduct:
		return "cross_product"
	case StrategyList:
		return "list"
	case StrategyFeed:
		return "feed"
	default:
		return "none"
	}
}

// StringList accepts either a YAML sequence or a string holding a JSON array,
// which is how list cells arrive from spreadsheets.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	case yaml.ScalarNode:
		parsed, err := ParseStringList(value.Value)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	default:
		return fmt.Errorf("line %d: expected list or JSON array string", value.Line)
	}
}

// ParseStringList decodes a JSON array string. A bare value that is not a
// JSON array is treated as a one-element list.
func ParseStringList(s string) (StringList, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") {
		return StringList{s}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("parse list %q: %w", s, err)
	}
	return items, nil
}

// Selectors are CSS selectors consumed by the HTML extractor.
type Selectors struct {
	Product          string `yaml:"product_selector"`
	Name             string `yaml:"name_selector"`
	Price            string `yaml:"price_selector"`
	Link             string `yaml:"product_link_selector"`
	InStock          string `yaml:"availability_in_stock_selector"`
	OutOfStock       string `yaml:"availability_out_of_stock_selector"`
	OutOfStockText   string `yaml:"availability_out_of_stock_text"`
	Preorder         string `yaml:"preorder_selector"`
	NotReleased      string `yaml:"not_released_selector"`
	BuyButton        string `yaml:"buy_button_selector"`
	CheckProductPage bool   `yaml:"check_product_page_if_not_released"`
	// AssumeInStock treats a product without an out-of-stock element as
	// in stock.
	AssumeInStock bool `yaml:"treat_missing_out_of_stock_as_in_stock"`
}

// FeedConfig describes a JSON product feed. Keys are dotted paths.
type FeedConfig struct {
	URL         string `yaml:"api_url"`
	BaseURL     string `yaml:"api_base_url"`
	ItemsKey    string `yaml:"api_items_key"`
	TitleKey    string `yaml:"api_title_key"`
	URLKey      string `yaml:"api_url_key"`
	PriceKey    string `yaml:"api_price_key"`
	StockKey    string `yaml:"api_stock_key"`
	PreorderKey string `yaml:"api_preorder_key"`
}

// SiteConfig is one configured retail source.
type SiteConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	URL               string     `yaml:"url"`
	URLPattern        string     `yaml:"url_pattern"`
	URLPatternComplex string     `yaml:"url_pattern_complex"`
	Categories        StringList `yaml:"url_pattern_lv1"`
	URLs              StringList `yaml:"urls"`
	StartPage         int        `yaml:"start_page"`
	MaxPages          int        `yaml:"max_pages"`

	// MaxParallelURLs caps concurrent page work for this site; zero uses the
	// run default.
	MaxParallelURLs int           `yaml:"max_parallel_urls"`
	Timeout         time.Duration `yaml:"timeout"`
	URLTimeout      time.Duration `yaml:"url_timeout"`

	LinkIdentity   bool `yaml:"link_identity"`
	SkipKeywords   bool `yaml:"skip_keywords"`
	ForceAvailable bool `yaml:"force_available"`

	Selectors Selectors  `yaml:",inline"`
	Feed      FeedConfig `yaml:",inline"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (s *SiteConfig) ApplyDefaults() {
	s.Name = strings.TrimSpace(s.Name)
	if s.StartPage <= 0 {
		s.StartPage = 1
	}
	if s.MaxPages <= 0 {
		s.MaxPages = 1
	}
	if s.Feed.ItemsKey == "" {
		s.Feed.ItemsKey = "products"
	}
	if s.Feed.TitleKey == "" {
		s.Feed.TitleKey = "mainTitle"
	}
	if s.Feed.URLKey == "" {
		s.Feed.URLKey = "url"
	}
	if s.Feed.PriceKey == "" {
		s.Feed.PriceKey = "price"
	}
	if s.Feed.StockKey == "" {
		s.Feed.StockKey = "stock.web"
	}
	if s.Feed.PreorderKey == "" {
		s.Feed.PreorderKey = "isPreOrderable"
	}
}

// Strategy picks the URL expansion strategy from the populated fields.
func (s *SiteConfig) Strategy() Strategy {
	switch {
	case strings.TrimSpace(s.Feed.URL) != "":
		return StrategyFeed
	case strings.TrimSpace(s.URLPattern) != "":
		return StrategyPaged
	case strings.TrimSpace(s.URLPatternComplex) != "":
		return StrategyCrossProduct
	case strings.TrimSpace(s.URL) != "":
		return StrategySingle
	case len(s.URLs) > 0:
		return StrategyList
	default:
		return StrategyNone
	}
}

// IsFeed reports whether the site is pulled from a structured feed.
func (s *SiteConfig) IsFeed() bool {
	return s.Strategy() == StrategyFeed
}

// Validate checks the fields the runner relies on.
func (s *SiteConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("site name cannot be empty")
	}
	if s.MaxParallelURLs < 0 {
		return fmt.Errorf("site %s: max parallel urls cannot be negative", s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("site %s: timeout cannot be negative", s.Name)
	}
	if s.URLTimeout < 0 {
		return fmt.Errorf("site %s: url timeout cannot be negative", s.Name)
	}
	if s.Strategy() == StrategyNone {
		return fmt.Errorf("site %s: %w", s.Name, ErrNoURLs)
	}
	if s.Strategy() != StrategyFeed && s.Selectors.Product == "" {
		return fmt.Errorf("site %s: product selector cannot be empty", s.Name)
	}
	return nil
}

// Expand returns the page URLs for the site in a stable order without
// duplicates.
func (s *SiteConfig) Expand() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start, end := s.pageRange()
	var urls []string
	switch s.Strategy() {
	case StrategyFeed:
		for p := start; p < end; p++ {
			urls = append(urls, fillPattern(s.Feed.URL, "", p))
		}
	case StrategyPaged:
		for p := start; p < end; p++ {
			urls = append(urls, fillPattern(s.URLPattern, "", p))
		}
	case StrategyCrossProduct:
		categories := s.Categories
		if len(categories) == 0 {
			categories = StringList{""}
		}
		for _, category := range categories {
			for p := start; p < end; p++ {
				urls = append(urls, fillPattern(s.URLPatternComplex, category, p))
			}
		}
	case StrategySingle:
		urls = append(urls, strings.TrimSpace(s.URL))
	case StrategyList:
		urls = append(urls, s.URLs...)
	}

	urls = uniqueNonEmpty(urls)
	if len(urls) == 0 {
		return nil, fmt.Errorf("site %s: %w", s.Name, ErrNoURLs)
	}
	return urls, nil
}

func (s *SiteConfig) pageRange() (int, int) {
	start := s.StartPage
	if start <= 0 {
		start = 1
	}
	count := s.MaxPages
	if count <= 0 {
		count = 1
	}
	return start, start + count
}

func fillPattern(pattern, category string, page int) string {
	r := strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{category}", category,
		"{url_pattern_lv1}", category,
	)
	return strings.TrimSpace(r.Replace(pattern))
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
