package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var latin = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "å", "a",
	"ç", "c",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i", "ı", "i",
	"ñ", "n",
	"ò", "o", "ó", "o", "ô", "o", "ö", "o", "ø", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ß", "ss",
)

// Generate creates a URL-friendly slug from name.
//
//	"Tea towel (Grey)" -> "tea-towel-grey"
//	"Café Crème"       -> "cafe-creme"
func Generate(name string) string {
	s := latin.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Key builds a cart item key from its parts, e.g. Key("T-shirt", "Red", "M")
// is "t-shirt-red-m". Empty parts are skipped.
func Key(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := Generate(p); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "-")
}
