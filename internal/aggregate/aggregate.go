// Package aggregate groups keyed rows and sums metric columns per composite key.
package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/models"
)

// Metric sums source column Source into output column Label.
type Metric struct {
	Source string
	Label  string
}

// Category routes rows whose normalized value equals Value into Label.
type Category struct {
	Value string
	Label string
}

// Sum groups t by the key column and sums every metric. Unparsable cells add zero.
func Sum(name string, t models.Table, metrics []Metric) (models.Aggregate, error) {
	ki, err := t.MustIndex(models.KeyColumn)
	if err != nil {
		return models.Aggregate{}, err
	}
	idx := make([]int, len(metrics))
	labels := make([]string, len(metrics))
	for i, m := range metrics {
		if idx[i], err = t.MustIndex(m.Source); err != nil {
			return models.Aggregate{}, err
		}
		labels[i] = m.Label
	}

	acc := make(map[string][]decimal.Decimal)
	var order []string
	for _, row := range t.Rows {
		k := t.Cell(row, ki)
		sums, ok := acc[k]
		if !ok {
			sums = make([]decimal.Decimal, len(metrics))
			acc[k] = sums
			order = append(order, k)
		}
		for i, c := range idx {
			if d, ok := ingest.ParseDecimal(t.Cell(row, c)); ok {
				sums[i] = sums[i].Add(d)
			}
		}
	}

	out := models.Aggregate{Name: name, Columns: labels, Keys: order, Sums: make(map[string][]float64, len(acc))}
	for k, sums := range acc {
		vals := make([]float64, len(sums))
		for i, d := range sums {
			vals[i] = d.InexactFloat64()
		}
		out.Sums[k] = vals
	}
	return out, nil
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Partition splits t into disjoint subsets by exact match of the normalized
// categorical column. Rows matching no category are dropped and counted.
func Partition(t models.Table, column string, cats []Category) (map[string]models.Table, int, error) {
	ci, err := t.MustIndex(column)
	if err != nil {
		return nil, 0, err
	}
	byValue := make(map[string]string, len(cats))
	parts := make(map[string]models.Table, len(cats))
	for _, c := range cats {
		byValue[normalize(c.Value)] = c.Label
		parts[c.Label] = models.Table{Name: t.Name + ":" + c.Label, Columns: t.Columns}
	}
	dropped := 0
	for _, row := range t.Rows {
		label, ok := byValue[normalize(t.Cell(row, ci))]
		if !ok {
			dropped++
			continue
		}
		p := parts[label]
		p.Rows = append(p.Rows, row)
		parts[label] = p
	}
	return parts, dropped, nil
}

// SumPartitioned sums one metric per category into its own column and merges
// the subsets, zero-filling keys a subset never saw.
func SumPartitioned(name string, t models.Table, column, metric string, cats []Category) (models.Aggregate, int, error) {
	if _, err := t.MustIndex(metric); err != nil {
		return models.Aggregate{}, 0, err
	}
	parts, dropped, err := Partition(t, column, cats)
	if err != nil {
		return models.Aggregate{}, 0, err
	}
	aggs := make([]models.Aggregate, 0, len(cats))
	for _, c := range cats {
		a, err := Sum(name, parts[c.Label], []Metric{{Source: metric, Label: c.Label}})
		if err != nil {
			return models.Aggregate{}, 0, err
		}
		aggs = append(aggs, a)
	}
	return Merge(name, aggs...), dropped, nil
}

// Merge outer-joins aggregates on key. Columns keep argument order; missing sums are zero.
func Merge(name string, aggs ...models.Aggregate) models.Aggregate {
	out := models.Aggregate{Name: name, Sums: map[string][]float64{}}
	for _, a := range aggs {
		out.Columns = append(out.Columns, a.Columns...)
	}
	offset := 0
	for _, a := range aggs {
		for _, k := range a.Keys {
			vals, ok := out.Sums[k]
			if !ok {
				vals = make([]float64, len(out.Columns))
				out.Sums[k] = vals
				out.Keys = append(out.Keys, k)
			}
			copy(vals[offset:], a.Sums[k])
		}
		offset += len(a.Columns)
	}
	return out
}
