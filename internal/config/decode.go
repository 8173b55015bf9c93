package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/pricewatch/internal/models"
)

// Error reports a missing or malformed configuration field. It is fatal
// for the single supplier or competitor it belongs to.
type Error struct {
	Owner  string
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("invalid configuration for %s: %s: %s", e.Owner, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err carries a *Error.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

func missing(field string) *Error {
	return &Error{Field: field, Reason: "required"}
}

// DecodeLooseJSON decodes raw into v. Values stored pre-serialized and
// re-escaped are unwrapped first: surrounding quotes trimmed, literal \n
// sequences dropped, backslash escapes removed.
func DecodeLooseJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Error{Field: "config", Reason: "empty"}
	}

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	cleaned := strings.Trim(raw, `"`)
	cleaned = strings.ReplaceAll(cleaned, `\n`, "")
	cleaned = stripSlashes(cleaned)

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &Error{Field: "config", Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	return nil
}

// stripSlashes removes one level of backslash escaping.
func stripSlashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// DecodeSupplierConfig decodes and validates a supplier source config.
// kind overrides the "type" key when the store keeps it in its own column.
func DecodeSupplierConfig(name, kind, raw string) (models.SupplierSourceConfig, error) {
	var cfg models.SupplierSourceConfig
	if err := DecodeLooseJSON(raw, &cfg); err != nil {
		return cfg, withOwner(err, name)
	}

	if kind != "" {
		cfg.Kind = models.SourceKind(strings.ToLower(kind))
	}
	cfg.ApplyDefaults()

	if err := ValidateSupplierConfig(cfg); err != nil {
		return cfg, withOwner(err, name)
	}
	return cfg, nil
}

func ValidateSupplierConfig(cfg models.SupplierSourceConfig) error {
	switch cfg.Kind {
	case models.SourceLocal:
		if cfg.Path == "" {
			return missing("path")
		}
	case models.SourceFTP:
		required := []struct{ field, value string }{
			{"host", cfg.Host},
			{"username", cfg.Username},
			{"password", cfg.Password},
			{"path", cfg.Path},
		}
		for _, r := range required {
			if r.value == "" {
				return missing(r.field)
			}
		}
	case models.SourceHTTP:
		if cfg.URL == "" {
			return missing("url")
		}
	case "":
		return missing("type")
	default:
		return &Error{Field: "type", Reason: fmt.Sprintf("unsupported source type %q", cfg.Kind)}
	}

	if !cfg.Columns.Complete() {
		return &Error{Field: "columns", Reason: "sku, title and price mappings are required"}
	}
	if len([]rune(cfg.Delimiter)) != 1 {
		return &Error{Field: "delimiter", Reason: "must be a single character"}
	}
	return nil
}

// DecodeCompetitorConfig decodes and validates a competitor crawl config.
func DecodeCompetitorConfig(name, raw string) (models.CompetitorCrawlConfig, error) {
	var cfg models.CompetitorCrawlConfig
	if err := DecodeLooseJSON(raw, &cfg); err != nil {
		return cfg, withOwner(err, name)
	}

	if err := ValidateCompetitorConfig(cfg); err != nil {
		return cfg, withOwner(err, name)
	}
	return cfg, nil
}

func ValidateCompetitorConfig(cfg models.CompetitorCrawlConfig) error {
	if len(cfg.URLs()) == 0 {
		return &Error{Field: "product_urls", Reason: "product_urls or base_url is required"}
	}
	if cfg.Selectors.Title == "" {
		return missing("selectors.title")
	}
	if cfg.Selectors.Price == "" {
		return missing("selectors.price")
	}

	switch cfg.Render {
	case "", models.RenderHTTP, models.RenderBrowser:
	default:
		return &Error{Field: "render", Reason: fmt.Sprintf("unsupported render mode %q", cfg.Render)}
	}

	for i, sel := range cfg.Selectors.Identifier {
		switch sel.Strategy {
		case models.StrategyJSONLD:
		case models.StrategyMeta, models.StrategyAttribute, models.StrategyCSS:
			if sel.Selector == "" {
				return missing(fmt.Sprintf("selectors.identifier[%d].selector", i))
			}
		default:
			return &Error{
				Field:  fmt.Sprintf("selectors.identifier[%d].strategy", i),
				Reason: fmt.Sprintf("unsupported strategy %q", sel.Strategy),
			}
		}
	}
	return nil
}

func withOwner(err error, owner string) error {
	var cfgErr *Error
	if errors.As(err, &cfgErr) && cfgErr.Owner == "" {
		cfgErr.Owner = owner
	}
	return err
}
