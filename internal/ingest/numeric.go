package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/perfmerge/internal/models"
)

type Number struct {
	Value float64
	Valid bool
}

// ParseDecimal strips thousands separators and parses what is left.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseNumber never fails: unparsable text is reported as an invalid zero.
func ParseNumber(raw string) Number {
	d, ok := ParseDecimal(raw)
	if !ok {
		return Number{}
	}
	return Number{Value: d.InexactFloat64(), Valid: true}
}

// CoerceNumeric rewrites the listed columns that exist in t as plain decimal
// strings, "0" for anything unparsable, and returns how many cells fell back.
func CoerceNumeric(t models.Table, cols ...string) (models.Table, int) {
	out := t.Clone()
	bad := 0
	for _, col := range cols {
		i := out.Index(col)
		if i < 0 {
			continue
		}
		for _, row := range out.Rows {
			if i >= len(row) {
				continue
			}
			d, ok := ParseDecimal(row[i])
			if !ok {
				bad++
				row[i] = "0"
				continue
			}
			row[i] = d.String()
		}
	}
	return out, bad
}
