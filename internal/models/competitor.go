package models

import "time"

type Strategy string

const (
	StrategyJSONLD    Strategy = "jsonld"
	StrategyMeta      Strategy = "meta"
	StrategyAttribute Strategy = "attribute"
	StrategyCSS       Strategy = "css"
)

// IdentifierSelector describes one way of locating a product identifier
// on a page. Field lists JSON-LD keys for the jsonld strategy.
type IdentifierSelector struct {
	Strategy  Strategy `json:"strategy"`
	Selector  string   `json:"selector,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

type SelectorMap struct {
	Identifier []IdentifierSelector `json:"identifier,omitempty"`
	SKU        string               `json:"sku,omitempty"`
	Title      string               `json:"title"`
	Price      string               `json:"price"`
}

const (
	RenderHTTP    = "http"
	RenderBrowser = "browser"
)

type CompetitorCrawlConfig struct {
	BaseURL            string      `json:"base_url,omitempty"`
	ProductURLs        []string    `json:"product_urls,omitempty"`
	Selectors          SelectorMap `json:"selectors"`
	Render             string      `json:"render,omitempty"`
	GenerateIdentifier bool        `json:"generate_identifier,omitempty"`
}

// URLs returns the product URLs to visit, falling back to the base URL.
func (c CompetitorCrawlConfig) URLs() []string {
	if len(c.ProductURLs) > 0 {
		return c.ProductURLs
	}
	if c.BaseURL != "" {
		return []string{c.BaseURL}
	}
	return nil
}

type Competitor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Website   string    `json:"website"`
	Active    bool      `json:"is_active"`
	RawConfig string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
