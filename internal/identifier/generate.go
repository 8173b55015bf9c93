package identifier

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var (
	pageExtension  = regexp.MustCompile(`(?i)\.(html|htm|php|asp|aspx)$`)
	trailingNumber = regexp.MustCompile(`[_-](\d+)$`)
	leadingNumber  = regexp.MustCompile(`^(\d+)[_-]`)
	slugUnsafe     = regexp.MustCompile(`[^a-z0-9\s-]`)
)

// brands is matched case-insensitively as a substring of the title.
var brands = []string{
	"Fender", "Gibson", "Ibanez", "PRS", "ESP", "Jackson", "Schecter",
	"Epiphone", "Squier", "Yamaha", "Taylor", "Martin",
	"Marshall", "Orange", "Mesa Boogie", "VOX", "Blackstar",
	"Pearl", "Tama", "DW", "Ludwig", "Mapex",
	"Korg", "Roland", "Nord", "Casio",
}

const hashPrefix = "gen-"

// Smart returns a stable identifier for a product page. The scraped value
// wins when it has at least three characters; otherwise it falls back to
// the URL, a brand and title slug, a title slug and finally a URL hash.
func Smart(scraped, pageURL, title string) string {
	if len(scraped) >= 3 {
		return scraped
	}

	if fromURL := FromURL(pageURL); len(fromURL) >= 3 && !strings.HasPrefix(fromURL, hashPrefix) {
		return fromURL
	}

	if brand := Brand(title); brand != "" {
		return brand + "-" + FromTitle(title, 2)
	}

	if slug := FromTitle(title, 3); len(slug) >= 5 {
		return slug
	}

	return Hash(pageURL)
}

// FromURL derives an identifier from the last path segment of rawURL:
// "/p/guitar_1000/index.html" style numeric suffixes or prefixes win,
// otherwise the whole segment is used.
func FromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return Hash(rawURL)
	}

	path := pageExtension.ReplaceAllString(u.Path, "")

	var last string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			last = seg
		}
	}

	if m := trailingNumber.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	if m := leadingNumber.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	return last
}

// FromTitle slugs the first maxWords words of title.
func FromTitle(title string, maxWords int) string {
	slug := slugUnsafe.ReplaceAllString(strings.ToLower(title), "")

	words := strings.Fields(slug)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, "-")
}

// Brand returns the lowercased known brand mentioned in title, or "".
func Brand(title string) string {
	lower := strings.ToLower(title)
	for _, b := range brands {
		if strings.Contains(lower, strings.ToLower(b)) {
			return strings.ToLower(b)
		}
	}
	return ""
}

// Hash returns "gen-" followed by the first ten hex chars of md5(input).
func Hash(input string) string {
	sum := md5.Sum([]byte(input))
	return hashPrefix + hex.EncodeToString(sum[:])[:10]
}
