package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/identifier"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
)

const utf8BOM = "\ufeff"

// ParseRows reads a headed CSV document and maps it through the column
// map. Rows without a usable identifier or with a non-positive price are
// dropped.
func ParseRows(r io.Reader, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error) {
	cfg.ApplyDefaults()

	if cfg.Enclosure != `"` {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		enc, _ := utf8.DecodeRuneInString(cfg.Enclosure)
		comma, _ := utf8.DecodeRuneInString(cfg.Delimiter)
		r = strings.NewReader(requote(string(raw), enc, comma))
	}

	reader := csv.NewReader(r)
	reader.Comma = []rune(cfg.Delimiter)[0]
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	idx, err := columnIndexes(header, cfg.Columns)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rows []models.RawProductRow

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		raw := strings.TrimSpace(field(record, idx.identifier))
		row := models.RawProductRow{
			RawIdentifier:        raw,
			NormalizedIdentifier: identifier.Normalize(raw),
			Title:                strings.TrimSpace(field(record, idx.title)),
			Price:                parser.ParsePrice(field(record, idx.price)),
			FetchedAt:            now,
		}

		if row.Valid() {
			rows = append(rows, row)
		}
	}

	return rows, nil
}

type columns struct {
	identifier, title, price int
}

func columnIndexes(header []string, m models.ColumnMap) (columns, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	lookup := func(field, name string) (int, error) {
		i, ok := positions[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, &config.Error{Field: "columns." + field, Reason: fmt.Sprintf("column %q not found in header", name)}
		}
		return i, nil
	}

	var c columns
	var err error
	if c.identifier, err = lookup("sku", m.Identifier); err != nil {
		return c, err
	}
	if c.title, err = lookup("title", m.Title); err != nil {
		return c, err
	}
	if c.price, err = lookup("price", m.Price); err != nil {
		return c, err
	}
	return c, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

// requote rewrites a document enclosed with enc into standard CSV quoting.
// enc only opens a quoted field at the start of a field and a doubled enc
// inside one is a literal; elsewhere enc is data. Fields carrying a literal
// '"' are re-quoted so the csv reader keeps them intact.
func requote(raw string, enc, comma rune) string {
	var out, field strings.Builder
	quoted, inQuotes, atStart := false, false, true

	flush := func() {
		f := field.String()
		if quoted || strings.ContainsRune(f, '"') {
			out.WriteByte('"')
			out.WriteString(strings.ReplaceAll(f, `"`, `""`))
			out.WriteByte('"')
		} else {
			out.WriteString(f)
		}
		field.Reset()
		quoted, atStart = false, true
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inQuotes:
			if c != enc {
				field.WriteRune(c)
				continue
			}
			if i+1 < len(runes) && runes[i+1] == enc {
				field.WriteRune(enc)
				i++
				continue
			}
			inQuotes = false
		case atStart && c == enc:
			quoted, inQuotes, atStart = true, true, false
		case c == comma || c == '\n':
			flush()
			out.WriteRune(c)
		case c == '\r':
		default:
			atStart = false
			field.WriteRune(c)
		}
	}
	if field.Len() > 0 || quoted {
		flush()
	}
	return out.String()
}
