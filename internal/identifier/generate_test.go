package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmart(t *testing.T) {
	tests := []struct {
		name    string
		scraped string
		url     string
		title   string
		want    string
	}{
		{
			name:    "scraped identifier wins",
			scraped: "YAM-P45",
			url:     "https://shop.test/p/whatever-99",
			title:   "Yamaha P45",
			want:    "YAM-P45",
		},
		{
			name:    "short scraped falls through to url",
			scraped: "ab",
			url:     "https://shop.test/catalogue/a-light-in-the-attic_1000/index.html",
			title:   "A Light in the Attic",
			want:    "index",
		},
		{
			name:  "trailing number in slug",
			url:   "https://shop.test/product/guitar-fender-123",
			title: "Fender Stratocaster",
			want:  "123",
		},
		{
			name:  "leading number in slug with extension",
			url:   "https://shop.test/p/4711-yamaha-p45.html",
			title: "Yamaha P45",
			want:  "4711",
		},
		{
			name:  "brand and two title words",
			url:   "https://shop.test/",
			title: "Fender Stratocaster American Professional II",
			want:  "fender-fender-stratocaster",
		},
		{
			name:  "title slug",
			url:   "https://shop.test/",
			title: "Vintage Tube Amplifier 50W",
			want:  "vintage-tube-amplifier",
		},
		{
			name:  "hash fallback",
			url:   "https://shop.test/",
			title: "Amp",
			want:  "gen-b1d36e1d09",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Smart(tt.scraped, tt.url, tt.title))
		})
	}
}

func TestSmart_Deterministic(t *testing.T) {
	a := Smart("", "https://shop.test/", "x")
	b := Smart("", "https://shop.test/", "x")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://site.com/product/guitar-fender-123", "123"},
		{"https://site.com/p/12345", "12345"},
		{"https://site.com/p/ab", "ab"},
		{"https://site.com/p/item_77.aspx", "77"},
		{"https://site.com", Hash("https://site.com")},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FromURL(tt.url))
		})
	}
}

func TestFromTitle(t *testing.T) {
	assert.Equal(t, "fender-stratocaster-american", FromTitle("Fender Stratocaster American Professional II", 3))
	assert.Equal(t, "gibson-les", FromTitle("Gibson Les Paul Standard 60s", 2))
	assert.Equal(t, "acoustic-guitar", FromTitle("  Acoustic   Guitar! ", 5))
	assert.Equal(t, "", FromTitle("", 3))
}

func TestBrand(t *testing.T) {
	assert.Equal(t, "yamaha", Brand("YAMAHA P-45 Digital Piano"))
	assert.Equal(t, "mesa boogie", Brand("Mesa Boogie Mark V"))
	assert.Equal(t, "", Brand("Generic Cable 3m"))
}

func TestHash(t *testing.T) {
	assert.Equal(t, "gen-d41d8cd98f", Hash(""))
	assert.Equal(t, "gen-35a8830b82", Hash("https://shop.test/p/ab"))
}
