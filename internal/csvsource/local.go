package csvsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/pricewatch/internal/models"
)

// LocalReader resolves relative paths against a list of storage roots,
// first match wins.
type LocalReader struct {
	Roots []string
}

// NewLocalReader searches root, root/app and root/app/private.
func NewLocalReader(root string) *LocalReader {
	return &LocalReader{Roots: []string{
		root,
		filepath.Join(root, "app"),
		filepath.Join(root, "app", "private"),
	}}
}

func (r *LocalReader) Kind() models.SourceKind { return models.SourceLocal }

func (r *LocalReader) Read(_ context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error) {
	path, err := r.resolve(cfg.Path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ParseRows(f, cfg)
}

func (r *LocalReader) resolve(path string) (string, error) {
	var tried []string

	if filepath.IsAbs(path) {
		if isFile(path) {
			return path, nil
		}
		tried = append(tried, path)
	}

	rel := strings.TrimLeft(path, `/\`)
	for _, root := range r.Roots {
		candidate := filepath.Join(root, rel)
		if isFile(candidate) {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}

	return "", fmt.Errorf("%w: %s (tried: %s)", ErrFileNotFound, path, strings.Join(tried, ", "))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
