package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/utils"
)

var ErrUnreadable = errors.New("unreadable source")

var bom = []byte{0xEF, 0xBB, 0xBF}

// candidate delimiters, in tie-break order
var delimiters = []rune{',', ';', '\t', '|'}

type Loader struct {
	c       HTTPClient
	log     *slog.Logger
	backoff utils.Backoff
}

func NewLoader(c HTTPClient, log *slog.Logger, backoff utils.Backoff) *Loader {
	return &Loader{c: c, log: log, backoff: backoff}
}

// Load reads a local path or an http(s) URL into a table with normalized headers.
func (l *Loader) Load(ctx context.Context, name, location string) (models.Table, error) {
	b, err := l.read(ctx, location)
	if err != nil {
		return models.Table{}, fmt.Errorf("%w %s (%s): %v", ErrUnreadable, name, location, err)
	}
	t, err := Parse(name, b)
	if err != nil {
		return models.Table{}, err
	}
	l.log.Debug("source loaded", slog.String("source", name), slog.String("location", location),
		slog.Int("rows", len(t.Rows)), slog.Int("columns", len(t.Columns)))
	return t, nil
}

func (l *Loader) read(ctx context.Context, location string) ([]byte, error) {
	if isRemote(location) {
		if l.c == nil {
			return nil, errors.New("no http client for remote source")
		}
		return GetWithRetry(ctx, l.c, l.backoff, location)
	}
	return os.ReadFile(location)
}

func isRemote(loc string) bool {
	loc = strings.ToLower(loc)
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// Parse decodes delimited text. The sniffed delimiter is tried first through a
// strict dataframe read; anything it rejects (ragged rows, header-only files,
// stray quotes) is retried leniently with the same delimiter.
func Parse(name string, b []byte) (models.Table, error) {
	b = bytes.TrimPrefix(b, bom)
	delim := SniffDelimiter(b)
	records, err := parseStrict(b, delim)
	if err != nil {
		records, err = parseLenient(b, delim)
		if err != nil {
			return models.Table{}, fmt.Errorf("%w %s: %v", ErrUnreadable, name, err)
		}
	}
	if len(records) == 0 {
		return models.Table{}, fmt.Errorf("%w %s: no header row", ErrUnreadable, name)
	}
	t := models.Table{Name: name, Columns: NormalizeColumns(records[0])}
	width := len(t.Columns)
	for _, rec := range records[1:] {
		row := make([]string, width)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseStrict(b []byte, delim rune) ([][]string, error) {
	df := dataframe.ReadCSV(bytes.NewReader(b),
		dataframe.WithDelimiter(delim),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, df.Err
	}
	return df.Records(), nil
}

func parseLenient(b []byte, delim rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// SniffDelimiter counts candidate delimiters outside quotes on the header line.
func SniffDelimiter(b []byte) rune {
	line := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		line = b[:i]
	}
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}
	best, bestN := ',', 0
	for _, d := range delimiters {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best
}

// NormalizeColumns trims, lower-cases and replaces spaces with underscores.
func NormalizeColumns(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
	}
	return out
}
