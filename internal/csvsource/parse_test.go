package csvsource

import (
	"strings"
	"testing"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnsCfg() models.SupplierSourceConfig {
	return models.SupplierSourceConfig{
		Kind:    models.SourceLocal,
		Path:    "feed.csv",
		Columns: models.ColumnMap{Identifier: "sku", Title: "title", Price: "price"},
	}
}

func TestParseRows(t *testing.T) {
	input := "\ufeffsku,title,price\n" +
		"YAM-P45,Yamaha P45,\"450,00\"\n" +
		"---,No identifier,10.00\n" +
		"FREE-1,Free sample,0\n" +
		"BAD-PRICE,Broken,n/a\n" +
		"fen-strat, Fender Strat ,\"€1.299,00\"\n"

	rows, err := ParseRows(strings.NewReader(input), columnsCfg())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "YAM-P45", rows[0].RawIdentifier)
	assert.Equal(t, "yamp45", rows[0].NormalizedIdentifier)
	assert.Equal(t, "Yamaha P45", rows[0].Title)
	assert.True(t, decimal.RequireFromString("450").Equal(rows[0].Price))
	assert.False(t, rows[0].FetchedAt.IsZero())

	assert.Equal(t, "fenstrat", rows[1].NormalizedIdentifier)
	assert.Equal(t, "Fender Strat", rows[1].Title)
	assert.True(t, decimal.RequireFromString("1299").Equal(rows[1].Price))
}

func TestParseRows_DelimiterAndEnclosure(t *testing.T) {
	cfg := columnsCfg()
	cfg.Delimiter = ";"
	cfg.Enclosure = "'"
	cfg.Columns = models.ColumnMap{Identifier: "Artikelnummer", Title: "Bezeichnung", Price: "Preis"}

	input := "Artikelnummer;Bezeichnung;Preis\n" +
		"A-1;'Kabel; 3m';'12,50'\n" +
		"A-2;Stecker;3,99\n"

	rows, err := ParseRows(strings.NewReader(input), cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Kabel; 3m", rows[0].Title)
	assert.True(t, decimal.RequireFromString("12.5").Equal(rows[0].Price))
	assert.True(t, decimal.RequireFromString("3.99").Equal(rows[1].Price))
}

func TestParseRows_EnclosureInsideData(t *testing.T) {
	cfg := columnsCfg()
	cfg.Delimiter = ";"
	cfg.Enclosure = "'"

	input := "sku;title;price\r\n" +
		"YAM-P45;'Rock''n''Roll Piano; 88 keys';'450,00'\r\n" +
		"FEN-01;Rock'n'Roll Strat;1299\r\n" +
		"GIB-LP;\"Les Paul\" Standard;2499\r\n" +
		"ROL-10;'Multi\nline';80"

	rows, err := ParseRows(strings.NewReader(input), cfg)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "Rock'n'Roll Piano; 88 keys", rows[0].Title)
	assert.True(t, decimal.RequireFromString("450").Equal(rows[0].Price))
	assert.Equal(t, "Rock'n'Roll Strat", rows[1].Title)
	assert.Equal(t, `"Les Paul" Standard`, rows[2].Title)
	assert.Equal(t, "Multi\nline", rows[3].Title)
	assert.Equal(t, "rol10", rows[3].NormalizedIdentifier)
}

func TestRequote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain fields untouched", "a;b;c\n", "a;b;c\n"},
		{"enclosed field", "'a;b';c", `"a;b";c`},
		{"doubled enclosure", "'it''s';x", `"it's";x`},
		{"enclosure mid field is data", "it's;x", "it's;x"},
		{"literal double quote", `say "hi";x`, `"say ""hi""";x`},
		{"empty enclosed field", "'';x", `"";x`},
		{"crlf folded", "a;b\r\nc;d", "a;b\nc;d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requote(tt.in, '\'', ';'))
		})
	}
}

func TestParseRows_HeaderMatching(t *testing.T) {
	cfg := columnsCfg()
	cfg.Columns = models.ColumnMap{Identifier: "SKU", Title: "Title", Price: "Price"}

	rows, err := ParseRows(strings.NewReader(" sku ,TITLE,price\nX1,Thing,5\n"), cfg)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestParseRows_MissingColumn(t *testing.T) {
	_, err := ParseRows(strings.NewReader("sku,name,price\nX1,Thing,5\n"), columnsCfg())
	require.Error(t, err)

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "columns.title", cfgErr.Field)
}

func TestParseRows_ShortRecordsAndEmpty(t *testing.T) {
	rows, err := ParseRows(strings.NewReader("sku,title,price\nX1,Thing\nX2,Other,7\n"), columnsCfg())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x2", rows[0].NormalizedIdentifier)

	rows, err = ParseRows(strings.NewReader(""), columnsCfg())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
