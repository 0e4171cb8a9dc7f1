package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const KeyColumn = "unique_key"

var ErrMissingColumn = errors.New("missing column")

type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Index returns the position of col, or -1.
func (t Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

func (t Table) Has(col string) bool { return t.Index(col) >= 0 }

// MustIndex is Index with a wrapped ErrMissingColumn for required columns.
func (t Table) MustIndex(col string) (int, error) {
	i := t.Index(col)
	if i < 0 {
		return -1, fmt.Errorf("%s: %w %q", t.Name, ErrMissingColumn, col)
	}
	return i, nil
}

// Cell tolerates short rows.
func (t Table) Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Clone copies rows so stages never share backing arrays.
func (t Table) Clone() Table {
	out := Table{Name: t.Name, Columns: append([]string(nil), t.Columns...), Rows: make([][]string, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

type Kind uint8

const (
	Null Kind = iota
	Text
	Number
)

type Value struct {
	Kind Kind
	Text string
	Num  float64
}

func TextValue(s string) Value    { return Value{Kind: Text, Text: s} }
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }

func (v Value) String() string {
	switch v.Kind {
	case Text:
		return v.Text
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return ""
}

type Aggregate struct {
	Name    string
	Columns []string             // metric labels, e.g. TW_LP
	Keys    []string             // first-seen order
	Sums    map[string][]float64 // key -> one sum per column
}

type FrameRow struct {
	Key   string
	Cells []Value
}

// Frame is a join operand: the key column plus Columns, cell-aligned.
type Frame struct {
	Columns []string
	Rows    []FrameRow
}

func (f Frame) Index(col string) int {
	for i, c := range f.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

type Total struct {
	Label string  `json:"label"`
	Sum   float64 `json:"sum"`
}

type Issues struct {
	BadDates    int `json:"bad_dates"`
	BadIDs      int `json:"bad_ids"`
	BadNumbers  int `json:"bad_numbers"`
	DroppedRows int `json:"dropped_rows"`
}

func (i Issues) Add(o Issues) Issues {
	return Issues{
		BadDates:    i.BadDates + o.BadDates,
		BadIDs:      i.BadIDs + o.BadIDs,
		BadNumbers:  i.BadNumbers + o.BadNumbers,
		DroppedRows: i.DroppedRows + o.DroppedRows,
	}
}

func (i Issues) Recovered() int { return i.BadDates + i.BadIDs + i.BadNumbers }

type SourceStat struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
	Keys     int    `json:"keys"`
}

type RunResult struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Output     string       `json:"output"`
	Rows       int          `json:"rows"`
	Columns    []string     `json:"columns"`
	Totals     []Total      `json:"totals"`
	Issues     Issues       `json:"issues"`
	Sources    []SourceStat `json:"sources"`
	Frame      Frame        `json:"-"`
}
