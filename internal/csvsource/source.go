// Package csvsource reads supplier price lists from local files, FTP
// servers and HTTP endpoints.
package csvsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/models"
)

var ErrFileNotFound = errors.New("csv file not found")

// Reader fetches and parses one kind of supplier source.
type Reader interface {
	Kind() models.SourceKind
	Read(ctx context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error)
}

// FetchError is a transient transport failure. The import job may retry
// the supplier on its next run.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s failed: status %d", e.Source, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s failed: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.Source)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Temporary() bool { return true }

// Registry dispatches a source config to the reader for its kind.
type Registry struct {
	readers map[models.SourceKind]Reader
}

func NewRegistry(readers ...Reader) *Registry {
	r := &Registry{readers: make(map[models.SourceKind]Reader, len(readers))}
	for _, reader := range readers {
		r.readers[reader.Kind()] = reader
	}
	return r
}

func (r *Registry) For(kind models.SourceKind) (Reader, error) {
	reader, ok := r.readers[kind]
	if !ok {
		return nil, &config.Error{Field: "type", Reason: fmt.Sprintf("unsupported source type %q", kind)}
	}
	return reader, nil
}

// Read validates cfg and reads it with the matching reader.
func (r *Registry) Read(ctx context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error) {
	cfg.ApplyDefaults()
	if err := config.ValidateSupplierConfig(cfg); err != nil {
		return nil, err
	}

	reader, err := r.For(cfg.Kind)
	if err != nil {
		return nil, err
	}
	return reader.Read(ctx, cfg)
}

func (r *Registry) Kinds() []models.SourceKind {
	kinds := make([]models.SourceKind, 0, len(r.readers))
	for k := range r.readers {
		kinds = append(kinds, k)
	}
	return kinds
}
