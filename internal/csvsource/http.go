package csvsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/maltedev/pricewatch/internal/models"
)

type HTTPReader struct {
	client *http.Client
}

// NewHTTPReader uses client, or a client with a 60s timeout when nil.
func NewHTTPReader(client *http.Client) *HTTPReader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPReader{client: client}
}

func (r *HTTPReader) Kind() models.SourceKind { return models.SourceHTTP }

func (r *HTTPReader) Read(ctx context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration(60*time.Second))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Source: cfg.URL, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp("", "csv_http_*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return nil, &FetchError{Source: cfg.URL, Err: err}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}

	return ParseRows(tmp, cfg)
}
