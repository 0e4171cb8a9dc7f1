// Package reconcile chains full outer joins on the composite key and lays out
// the final table.
package reconcile

import (
	"sort"

	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/models"
)

// NullTokens are base-table cells treated as missing, so they zero-fill like
// cells a join left empty.
var NullTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "#NA": {}, "<NA>": {},
}

// FromTable turns a keyed source table into a join operand. The key column
// moves out of Columns into FrameRow.Key. Columns whose every non-null cell
// is a number ("1,000.50" included) are rewritten in plain decimal form.
func FromTable(t models.Table) (models.Frame, error) {
	ki, err := t.MustIndex(models.KeyColumn)
	if err != nil {
		return models.Frame{}, err
	}
	numeric := numericColumns(t)
	f := models.Frame{Columns: make([]string, 0, len(t.Columns)-1)}
	for i, c := range t.Columns {
		if i != ki {
			f.Columns = append(f.Columns, c)
		}
	}
	f.Rows = make([]models.FrameRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		fr := models.FrameRow{Key: t.Cell(row, ki), Cells: make([]models.Value, 0, len(f.Columns))}
		for i := range t.Columns {
			if i == ki {
				continue
			}
			v := t.Cell(row, i)
			if _, null := NullTokens[v]; null {
				fr.Cells = append(fr.Cells, models.Value{})
				continue
			}
			if numeric[i] {
				d, _ := ingest.ParseDecimal(v)
				v = d.String()
			}
			fr.Cells = append(fr.Cells, models.TextValue(v))
		}
		f.Rows = append(f.Rows, fr)
	}
	return f, nil
}

// numericColumns marks columns with at least one value where every non-null
// cell parses as a decimal. Values stay text so long IDs keep every digit.
func numericColumns(t models.Table) []bool {
	out := make([]bool, len(t.Columns))
	for i := range t.Columns {
		seen := false
		out[i] = true
		for _, row := range t.Rows {
			v := t.Cell(row, i)
			if _, null := NullTokens[v]; null {
				continue
			}
			if _, ok := ingest.ParseDecimal(v); !ok {
				out[i] = false
				break
			}
			seen = true
		}
		out[i] = out[i] && seen
	}
	return out
}

func FromAggregate(a models.Aggregate) models.Frame {
	f := models.Frame{Columns: append([]string(nil), a.Columns...), Rows: make([]models.FrameRow, 0, len(a.Keys))}
	for _, k := range a.Keys {
		sums := a.Sums[k]
		cells := make([]models.Value, len(a.Columns))
		for i := range cells {
			if i < len(sums) {
				cells[i] = models.NumberValue(sums[i])
			} else {
				cells[i] = models.NumberValue(0)
			}
		}
		f.Rows = append(f.Rows, models.FrameRow{Key: k, Cells: cells})
	}
	return f
}

// OuterJoin keeps every key of either side. Duplicate keys pair up
// many-to-many; a side without the key contributes Null cells. Column names
// present on both sides get _x / _y suffixes. Rows come back sorted by key.
func OuterJoin(left, right models.Frame) models.Frame {
	out := models.Frame{Columns: joinColumns(left.Columns, right.Columns)}

	byKey := make(map[string][]int, len(right.Rows))
	for i, r := range right.Rows {
		byKey[r.Key] = append(byKey[r.Key], i)
	}
	leftKeys := make(map[string]struct{}, len(left.Rows))
	for _, l := range left.Rows {
		leftKeys[l.Key] = struct{}{}
		matches := byKey[l.Key]
		if len(matches) == 0 {
			out.Rows = append(out.Rows, concat(l.Key, l.Cells, nulls(len(right.Columns))))
			continue
		}
		for _, ri := range matches {
			out.Rows = append(out.Rows, concat(l.Key, l.Cells, right.Rows[ri].Cells))
		}
	}
	for _, r := range right.Rows {
		if _, ok := leftKeys[r.Key]; ok {
			continue
		}
		out.Rows = append(out.Rows, concat(r.Key, nulls(len(left.Columns)), r.Cells))
	}

	sort.SliceStable(out.Rows, func(i, j int) bool { return out.Rows[i].Key < out.Rows[j].Key })
	return out
}

func joinColumns(left, right []string) []string {
	inLeft := make(map[string]struct{}, len(left))
	for _, c := range left {
		inLeft[c] = struct{}{}
	}
	inRight := make(map[string]struct{}, len(right))
	for _, c := range right {
		inRight[c] = struct{}{}
	}
	cols := make([]string, 0, len(left)+len(right))
	for _, c := range left {
		if _, dup := inRight[c]; dup {
			c += "_x"
		}
		cols = append(cols, c)
	}
	for _, c := range right {
		if _, dup := inLeft[c]; dup {
			c += "_y"
		}
		cols = append(cols, c)
	}
	return cols
}

func nulls(n int) []models.Value { return make([]models.Value, n) }

func concat(key string, a, b []models.Value) models.FrameRow {
	cells := make([]models.Value, 0, len(a)+len(b))
	cells = append(cells, a...)
	cells = append(cells, b...)
	return models.FrameRow{Key: key, Cells: cells}
}

// FillNull replaces every Null cell with numeric zero.
func FillNull(f models.Frame) models.Frame {
	out := models.Frame{Columns: f.Columns, Rows: make([]models.FrameRow, len(f.Rows))}
	for i, r := range f.Rows {
		cells := make([]models.Value, len(r.Cells))
		for j, c := range r.Cells {
			if c.Kind == models.Null {
				c = models.NumberValue(0)
			}
			cells[j] = c
		}
		out.Rows[i] = models.FrameRow{Key: r.Key, Cells: cells}
	}
	return out
}

// Chain joins base with each frame left to right, then zero-fills.
func Chain(base models.Frame, frames ...models.Frame) models.Frame {
	acc := models.Frame{Columns: base.Columns, Rows: append([]models.FrameRow(nil), base.Rows...)}
	for _, f := range frames {
		acc = OuterJoin(acc, f)
	}
	if len(frames) == 0 {
		sort.SliceStable(acc.Rows, func(i, j int) bool { return acc.Rows[i].Key < acc.Rows[j].Key })
	}
	return FillNull(acc)
}

// Records renders the frame with the key column first.
func Records(f models.Frame) [][]string {
	out := make([][]string, 0, len(f.Rows)+1)
	out = append(out, append([]string{models.KeyColumn}, f.Columns...))
	for _, r := range f.Rows {
		rec := make([]string, 0, len(r.Cells)+1)
		rec = append(rec, r.Key)
		for _, c := range r.Cells {
			rec = append(rec, c.String())
		}
		out = append(out, rec)
	}
	return out
}
