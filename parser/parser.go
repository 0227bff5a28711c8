package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/stockwatch/identity"
	"github.com/aluiziolira/stockwatch/models"
)

// InStockWords are the phrases that mark an in-stock element as purchasable.
var InStockWords = []string{
	"i lager", "in stock", "available", "köp", "boka", "lägg i varukorg", "preorder", "add to cart",
}

// ValidateRecord ensures the extractor captured the required fields.
func ValidateRecord(r *models.RawProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name")
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("record missing url for %s", r.Name)
	}
	if strings.TrimSpace(r.SiteName) == "" {
		return fmt.Errorf("record missing site for %s", r.Name)
	}
	return nil
}

// CleanName collapses whitespace in a display name while keeping its case.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizePrice trims the price text and collapses inner whitespace.
func NormalizePrice(price string) string {
	return strings.Join(strings.Fields(price), " ")
}

// ResolveLink turns href into an absolute, canonical product link. Relative
// links are joined onto baseURL when set, otherwise resolved against pageURL.
// An empty href yields the page itself.
func ResolveLink(baseURL, pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return identity.CanonicalURL(pageURL)
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return identity.CanonicalURL(href)
	}
	if baseURL != "" {
		return identity.CanonicalURL(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/"))
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return identity.CanonicalURL(href)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return identity.CanonicalURL(href)
	}
	return identity.CanonicalURL(page.ResolveReference(ref).String())
}

// ContainsAny reports whether the lowercased text contains one of phrases.
// Blank phrases never match.
func ContainsAny(text string, phrases []string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// SplitList splits a comma separated cell into trimmed, non-empty values.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// KeywordFilter decides whether a product name is one the watcher cares about.
type KeywordFilter struct {
	keywords []*regexp.Regexp
	blocked  []string
}

// NewKeywordFilter compiles keywords as case-insensitive patterns. Blocked
// keywords are matched as plain substrings.
func NewKeywordFilter(keywords, blocked []string) (*KeywordFilter, error) {
	f := &KeywordFilter{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + kw)
		if err != nil {
			return nil, fmt.Errorf("compile keyword %q: %w", kw, err)
		}
		f.keywords = append(f.keywords, re)
	}
	for _, b := range blocked {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			f.blocked = append(f.blocked, b)
		}
	}
	return f, nil
}

// Match reports whether name passes the filter. A nil filter or one without
// keywords accepts everything that is not blocked.
func (f *KeywordFilter) Match(name string) bool {
	if f == nil {
		return true
	}
	lower := strings.ToLower(name)
	for _, b := range f.blocked {
		if strings.Contains(lower, b) {
			return false
		}
	}
	if len(f.keywords) == 0 {
		return true
	}
	for _, re := range f.keywords {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
