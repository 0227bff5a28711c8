// Package identity derives stable product fingerprints.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/aluiziolira/stockwatch/models"
)

// Normalize lowercases s, trims it and collapses interior whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Fingerprint hashes the normalized site and product names.
func Fingerprint(siteName, name string) models.Identity {
	return digest(Normalize(siteName), Normalize(name))
}

// FingerprintWithLink also mixes in the canonical product link, for sites
// that list distinct products under the same name.
func FingerprintWithLink(siteName, name, link string) models.Identity {
	return digest(Normalize(siteName), Normalize(name), CanonicalURL(link))
}

// ForRecord fingerprints rec, including its link when linkIdentity is set.
func ForRecord(rec models.RawProductRecord, linkIdentity bool) models.Identity {
	if linkIdentity {
		return FingerprintWithLink(rec.SiteName, rec.Name, rec.URL)
	}
	return Fingerprint(rec.SiteName, rec.Name)
}

// CanonicalURL drops the query and fragment of raw. Values that do not
// parse are returned trimmed and otherwise untouched.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func digest(parts ...string) models.Identity {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return models.Identity(hex.EncodeToString(sum[:]))
}
