package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

type sitesFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// LoadSites reads site configurations from a YAML/JSON file or an XLSX
// workbook, depending on the extension. Entries without a name are skipped.
func LoadSites(path, sheet string) ([]SiteConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadSitesXLSX(path, sheet)
	default:
		return LoadSitesFile(path)
	}
}

// LoadSitesFile reads a YAML document holding either a list of sites or a
// mapping with a "sites" key. JSON documents are accepted as YAML.
func LoadSitesFile(path string) ([]SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes site configurations from YAML or JSON bytes.
func ParseSites(data []byte) ([]SiteConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse sites: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var sites []SiteConfig
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&sites); err != nil {
			return nil, fmt.Errorf("decode sites: %w", err)
		}
	case yaml.MappingNode:
		var wrapped sitesFile
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode sites: %w", err)
		}
		sites = wrapped.Sites
	default:
		return nil, fmt.Errorf("parse sites: expected a list or a mapping with a sites key")
	}
	return finalizeSites(sites), nil
}

// LoadSitesXLSX reads one site per row. The first row holds the column names,
// which match the YAML keys.
func LoadSitesXLSX(path, sheet string) ([]SiteConfig, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var sites []SiteConfig
	for i, row := range rows[1:] {
		cells := make(map[string]string, len(header))
		for col, key := range header {
			if key == "" || col >= len(row) {
				continue
			}
			cells[key] = strings.TrimSpace(row[col])
		}
		site, err := siteFromCells(cells)
		if err != nil {
			slog.Warn("skipping site row", slog.Int("row", i+2), slog.Any("error", err))
			continue
		}
		sites = append(sites, site)
	}
	return finalizeSites(sites), nil
}

func siteFromCells(c map[string]string) (SiteConfig, error) {
	categories, err := ParseStringList(c["url_pattern_lv1"])
	if err != nil {
		return SiteConfig{}, err
	}
	urls, err := ParseStringList(c["urls"])
	if err != nil {
		return SiteConfig{}, err
	}
	timeout, err := cellDuration(c["timeout"])
	if err != nil {
		return SiteConfig{}, fmt.Errorf("timeout: %w", err)
	}
	urlTimeout, err := cellDuration(c["url_timeout"])
	if err != nil {
		return SiteConfig{}, fmt.Errorf("url_timeout: %w", err)
	}

	return SiteConfig{
		Name:              c["name"],
		BaseURL:           c["base_url"],
		URL:               c["url"],
		URLPattern:        c["url_pattern"],
		URLPatternComplex: c["url_pattern_complex"],
		Categories:        categories,
		URLs:              urls,
		StartPage:         SafeInt(c["start_page"], 1),
		MaxPages:          SafeInt(c["max_pages"], 1),
		MaxParallelURLs:   SafeInt(c["max_parallel_urls"], 0),
		Timeout:           timeout,
		URLTimeout:        urlTimeout,
		LinkIdentity:      cellBool(c["link_identity"]),
		SkipKeywords:      cellBool(c["skip_keywords"]),
		ForceAvailable:    cellBool(c["force_available"]) || cellBool(c["availability_status"]),
		Selectors: Selectors{
			Product:          c["product_selector"],
			Name:             c["name_selector"],
			Price:            c["price_selector"],
			Link:             c["product_link_selector"],
			InStock:          c["availability_in_stock_selector"],
			OutOfStock:       c["availability_out_of_stock_selector"],
			OutOfStockText:   c["availability_out_of_stock_text"],
			Preorder:         c["preorder_selector"],
			NotReleased:      c["not_released_selector"],
			BuyButton:        c["buy_button_selector"],
			CheckProductPage: cellBool(c["check_product_page_if_not_released"]),
			AssumeInStock:    cellBool(c["treat_missing_out_of_stock_as_in_stock"]),
		},
		Feed: FeedConfig{
			URL:         c["api_url"],
			BaseURL:     c["api_base_url"],
			ItemsKey:    c["api_items_key"],
			TitleKey:    c["api_title_key"],
			URLKey:      c["api_url_key"],
			PriceKey:    c["api_price_key"],
			StockKey:    c["api_stock_key"],
			PreorderKey: c["api_preorder_key"],
		},
	}, nil
}

func finalizeSites(in []SiteConfig) []SiteConfig {
	out := make([]SiteConfig, 0, len(in))
	for i := range in {
		site := in[i]
		site.ApplyDefaults()
		if site.Name == "" {
			slog.Warn("skipping site without name", slog.Int("index", i))
			continue
		}
		out = append(out, site)
	}
	return out
}

// SafeInt parses spreadsheet numbers leniently: "2", "2.0" and " 2 " all
// yield 2; anything else yields def.
func SafeInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

func cellBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "x":
		return true
	default:
		return false
	}
}

// cellDuration accepts a Go duration string or a plain number of seconds.
func cellDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
