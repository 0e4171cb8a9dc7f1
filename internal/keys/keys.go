// Package keys derives the composite identifier that lines rows up across
// exports: spreadsheet serial date + campaign digits + sub-campaign digits + "x".
package keys

import (
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/perfmerge/internal/models"
)

// Missing is the date segment written when a date cannot be parsed.
const Missing = "<NA>"

const separator = "x"

// spreadsheet day zero
var epoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-1-2",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

type Serial struct {
	Days  int
	Valid bool
}

func (s Serial) String() string {
	if !s.Valid {
		return Missing
	}
	return strconv.Itoa(s.Days)
}

// SerialDate counts calendar days since 1899-12-30. The time of day is ignored.
func SerialDate(raw string) Serial {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Serial{}
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return Serial{Days: int((day.Unix() - epoch.Unix()) / 86400), Valid: true}
	}
	return Serial{}
}

type Deriver struct {
	MinLen int
	MaxLen int
}

func New(minLen, maxLen int) Deriver { return Deriver{MinLen: minLen, MaxLen: maxLen} }

func Default() Deriver { return New(6, 20) }

// CleanIdentifier keeps the numeric core of a platform ID. Float renderings
// ("123.0") and comma grouping are undone before non-digits are dropped.
// Results outside [MinLen, MaxLen] digits are discarded as "".
func (d Deriver) CleanIdentifier(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ".0", "")
	s = strings.ReplaceAll(s, ",", "")
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	out := b.String()
	if len(out) < d.MinLen || len(out) > d.MaxLen {
		return "", false
	}
	return out, true
}

func (d Deriver) CompositeKey(date, campaign, sub string) string {
	c, _ := d.CleanIdentifier(campaign)
	s, _ := d.CleanIdentifier(sub)
	return SerialDate(date).String() + c + s + separator
}

// Spec names the columns a source uses for the key triple.
type Spec struct {
	Date     string
	Campaign string
	Sub      string
}

// Attach returns a copy of t with the key column set on every row. Bad dates
// and discarded identifiers are counted, never fatal; absent columns are.
func (d Deriver) Attach(t models.Table, spec Spec) (models.Table, models.Issues, error) {
	var iss models.Issues
	di, err := t.MustIndex(spec.Date)
	if err != nil {
		return models.Table{}, iss, err
	}
	ci, err := t.MustIndex(spec.Campaign)
	if err != nil {
		return models.Table{}, iss, err
	}
	si, err := t.MustIndex(spec.Sub)
	if err != nil {
		return models.Table{}, iss, err
	}

	out := t.Clone()
	ki := out.Index(models.KeyColumn)
	if ki < 0 {
		out.Columns = append(out.Columns, models.KeyColumn)
		ki = len(out.Columns) - 1
	}
	for r, row := range out.Rows {
		serial := SerialDate(t.Cell(row, di))
		if !serial.Valid {
			iss.BadDates++
		}
		c, ok := d.CleanIdentifier(t.Cell(row, ci))
		if !ok {
			iss.BadIDs++
		}
		s, ok := d.CleanIdentifier(t.Cell(row, si))
		if !ok {
			iss.BadIDs++
		}
		for len(row) <= ki {
			row = append(row, "")
		}
		row[ki] = serial.String() + c + s + separator
		out.Rows[r] = row
	}
	return out, iss, nil
}
