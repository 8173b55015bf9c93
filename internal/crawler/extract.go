package crawler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/maltedev/pricewatch/internal/identifier"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
)

// DefaultIdentifierSelectors are tried when a competitor configures no
// identifier strategies of its own.
var DefaultIdentifierSelectors = []models.IdentifierSelector{
	{Strategy: models.StrategyJSONLD, Fields: []string{"gtin13", "gtin", "ean"}},
	{Strategy: models.StrategyMeta, Selector: `meta[itemprop="gtin13"]`},
	{Strategy: models.StrategyMeta, Selector: `meta[property="product:ean"]`},
	{Strategy: models.StrategyMeta, Selector: `meta[name="ean"]`},
	{Strategy: models.StrategyAttribute, Selector: "[data-ean]", Attribute: "data-ean"},
}

// Extraction holds the fields read from one product page.
type Extraction struct {
	EAN   string
	SKU   string
	Title string
	Price decimal.Decimal
}

// Identifier returns the EAN when found, else the visible SKU.
func (e Extraction) Identifier() string {
	if e.EAN != "" {
		return e.EAN
	}
	return e.SKU
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract parses html with the competitor's selectors. It returns
// ErrExtractionMiss when the title or a positive price is missing.
func (x *Extractor) Extract(html string, sel models.SelectorMap) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var out Extraction

	strategies := sel.Identifier
	if len(strategies) == 0 {
		strategies = DefaultIdentifierSelectors
	}
	out.EAN, out.SKU = x.identifier(doc, strategies)

	if out.SKU == "" && sel.SKU != "" {
		out.SKU = firstText(doc, sel.SKU)
	}

	out.Title = firstText(doc, sel.Title)
	out.Price = extractPrice(doc, sel.Price)

	if out.Title == "" || !out.Price.IsPositive() {
		return out, ErrExtractionMiss
	}

	return out, nil
}

// identifier walks the strategies in order. Digit strategies fill the EAN;
// the css strategy fills the SKU and is returned as-is.
func (x *Extractor) identifier(doc *goquery.Document, strategies []models.IdentifierSelector) (ean, sku string) {
	for _, s := range strategies {
		value, err := x.runStrategy(doc, s)
		if err != nil {
			x.logger.Debug("identifier strategy failed", "strategy", s.Strategy, "selector", s.Selector, "error", err)
			continue
		}
		if value == "" {
			continue
		}
		if s.Strategy == models.StrategyCSS {
			return "", value
		}
		return value, ""
	}
	return "", ""
}

func (x *Extractor) runStrategy(doc *goquery.Document, s models.IdentifierSelector) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()

	switch s.Strategy {
	case models.StrategyJSONLD:
		fields := s.Fields
		if len(fields) == 0 {
			fields = DefaultIdentifierSelectors[0].Fields
		}
		return identifier.DigitsOnly(jsonLDValue(doc, fields)), nil

	case models.StrategyMeta:
		attr := s.Attribute
		if attr == "" {
			attr = "content"
		}
		v, _ := doc.Find(s.Selector).First().Attr(attr)
		return identifier.DigitsOnly(v), nil

	case models.StrategyAttribute:
		attr := s.Attribute
		if attr == "" {
			attr = "data-ean"
		}
		v, _ := doc.Find(s.Selector).First().Attr(attr)
		return identifier.DigitsOnly(v), nil

	case models.StrategyCSS:
		return firstText(doc, s.Selector), nil

	default:
		return "", fmt.Errorf("unknown strategy %q", s.Strategy)
	}
}

// jsonLDValue searches the JSON-LD blocks in document order. Within a block
// every field is checked at one level before descending into children.
func jsonLDValue(doc *goquery.Document, fields []string) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		found = findKey(v, fields)
		return found == ""
	})
	return found
}

func findKey(node any, fields []string) string {
	switch n := node.(type) {
	case map[string]any:
		for _, field := range fields {
			if v, ok := n[field].(string); ok && v != "" {
				return v
			}
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := findKey(n[k], fields); v != "" {
				return v
			}
		}
	case []any:
		for _, child := range n {
			if v := findKey(child, fields); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// extractPrice parses the first price match. Elements such as
// <meta itemprop="price" content="..."> carry the value in content.
func extractPrice(doc *goquery.Document, selector string) decimal.Decimal {
	if selector == "" {
		return decimal.Zero
	}
	node := doc.Find(selector).First()
	text := strings.TrimSpace(node.Text())
	if text == "" {
		text, _ = node.Attr("content")
	}
	return parser.ParsePrice(text)
}
