package models

import (
	"encoding/json"
	"time"
)

type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceFTP   SourceKind = "ftp"
	SourceHTTP  SourceKind = "http"
)

// ColumnMap maps logical fields to CSV header names.
type ColumnMap struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Price      string `json:"price"`
}

// UnmarshalJSON accepts "sku" as an alias for "identifier".
func (c *ColumnMap) UnmarshalJSON(data []byte) error {
	var raw struct {
		Identifier string `json:"identifier"`
		SKU        string `json:"sku"`
		Title      string `json:"title"`
		Price      string `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Identifier = raw.Identifier
	if c.Identifier == "" {
		c.Identifier = raw.SKU
	}
	c.Title = raw.Title
	c.Price = raw.Price
	return nil
}

func (c ColumnMap) Complete() bool {
	return c.Identifier != "" && c.Title != "" && c.Price != ""
}

type SupplierSourceConfig struct {
	Kind      SourceKind        `json:"type"`
	Path      string            `json:"path,omitempty"`
	URL       string            `json:"url,omitempty"`
	Host      string            `json:"host,omitempty"`
	Port      int               `json:"port,omitempty"`
	Username  string            `json:"username,omitempty"`
	Password  string            `json:"password,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
	Delimiter string            `json:"delimiter,omitempty"`
	Enclosure string            `json:"enclosure,omitempty"`
	Columns   ColumnMap         `json:"columns"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// ApplyDefaults fills delimiter, enclosure and FTP port defaults.
func (c *SupplierSourceConfig) ApplyDefaults() {
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.Enclosure == "" {
		c.Enclosure = `"`
	}
	if c.Kind == SourceFTP && c.Port == 0 {
		c.Port = 21
	}
}

// TimeoutDuration returns the configured timeout or def when unset.
func (c SupplierSourceConfig) TimeoutDuration(def time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return def
}

type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"is_active"`
	Kind      string    `json:"source_type"`
	RawConfig string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
