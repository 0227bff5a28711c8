package identity

import (
	"testing"

	"github.com/aluiziolira/stockwatch/models"
)

func TestFingerprintKnownValue(t *testing.T) {
	got := Fingerprint("Acme Shop", "Pokemon Elite Trainer Box")
	want := models.Identity("16ae278d61bab0497f8ed7dbf30aa90bcdd1470f9e658e75b7904fbcc01d13cf")
	if got != want {
		t.Fatalf("fingerprint = %s, want %s", got, want)
	}
}

func TestFingerprintNormalizationInvariance(t *testing.T) {
	base := Fingerprint("acme shop", "pokemon elite trainer box")
	variants := []struct {
		site string
		name string
	}{
		{site: "ACME SHOP", name: "Pokemon Elite Trainer Box"},
		{site: "  acme   shop ", name: "pokemon\telite  trainer\nbox"},
		{site: "Acme Shop", name: " POKEMON ELITE TRAINER BOX "},
	}
	for _, v := range variants {
		if got := Fingerprint(v.site, v.name); got != base {
			t.Fatalf("Fingerprint(%q, %q) = %s, want %s", v.site, v.name, got, base)
		}
	}
}

func TestFingerprintDistinguishesSites(t *testing.T) {
	if Fingerprint("shop a", "box") == Fingerprint("shop b", "box") {
		t.Fatalf("different sites must not share a fingerprint")
	}
	if Fingerprint("shop", "a b") == Fingerprint("shop a", "b") {
		t.Fatalf("separator must keep site and name apart")
	}
}

func TestFingerprintEmptyInputs(t *testing.T) {
	got := Fingerprint("", "   ")
	want := models.Identity("cbe5cfdf7c2118a9c3d78ef1d684f3afa089201352886449a06a6511cfef74a7")
	if got != want {
		t.Fatalf("empty fingerprint = %s, want %s", got, want)
	}
	if len(got) != 64 {
		t.Fatalf("fingerprint length = %d, want 64", len(got))
	}
}

func TestFingerprintWithLinkIgnoresQuery(t *testing.T) {
	a := FingerprintWithLink("Acme Shop", "Pokemon Elite Trainer Box", "https://acme.test/p/etb?utm=x#reviews")
	b := FingerprintWithLink("acme shop", "pokemon elite trainer box", "https://acme.test/p/etb")
	if a != b {
		t.Fatalf("query and fragment should not change the fingerprint")
	}
	want := models.Identity("f3026ef38ac93b37fc8474a4cd9e5c550d9530276ce227393a3efcf4a6cd1994")
	if a != want {
		t.Fatalf("fingerprint = %s, want %s", a, want)
	}
}

func TestForRecord(t *testing.T) {
	rec := models.RawProductRecord{SiteName: "Acme Shop", Name: "Pokemon Elite Trainer Box", URL: "https://acme.test/p/etb"}
	if ForRecord(rec, false) != Fingerprint(rec.SiteName, rec.Name) {
		t.Fatalf("ForRecord without link identity should match Fingerprint")
	}
	if ForRecord(rec, true) != FingerprintWithLink(rec.SiteName, rec.Name, rec.URL) {
		t.Fatalf("ForRecord with link identity should match FingerprintWithLink")
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://shop.test/item?id=1", want: "https://shop.test/item"},
		{in: "https://shop.test/item#top", want: "https://shop.test/item"},
		{in: " https://shop.test/a/b/ ", want: "https://shop.test/a/b/"},
		{in: "/relative/path?x=1", want: "/relative/path"},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
