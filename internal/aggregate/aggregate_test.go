package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/perfmerge/internal/models"
)

var nbCategories = []Category{
	{Value: "clicks only", Label: "NB_CO"},
	{Value: "first touch", Label: "NB_FT"},
	{Value: "last non-direct touch", Label: "NB_LN"},
}

func nbTable() models.Table {
	return models.Table{
		Name:    "nb",
		Columns: []string{"attribution_model", "ltv_attributed_rev", models.KeyColumn},
		Rows: [][]string{
			{"Clicks Only", "10", "k1"},
			{" first touch ", "5", "k1"},
			{"clicks only", "2.5", "k1"},
			{"Last Non-Direct Touch", "7", "k2"},
			{"linear", "100", "k2"},
			{"", "100", "k3"},
			{"first touch", "oops", "k3"},
		},
	}
}

func TestSum(t *testing.T) {
	tbl := models.Table{
		Name:    "tw",
		Columns: []string{"pixel_cv_lp", "pixel_cv_fc", models.KeyColumn},
		Rows: [][]string{
			{"0.1", "1", "b"},
			{"0.2", "2", "a"},
			{"0.2", "x", "b"},
		},
	}
	agg, err := Sum("tw", tbl, []Metric{{Source: "pixel_cv_lp", Label: "TW_LP"}, {Source: "pixel_cv_fc", Label: "TW_FC"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"TW_LP", "TW_FC"}, agg.Columns)
	assert.Equal(t, []string{"b", "a"}, agg.Keys)
	assert.Equal(t, []float64{0.3, 1}, agg.Sums["b"])
	assert.Equal(t, []float64{0.2, 2}, agg.Sums["a"])
}

func TestSumMissingMetricColumn(t *testing.T) {
	tbl := models.Table{Name: "polar", Columns: []string{models.KeyColumn}}
	_, err := Sum("polar", tbl, []Metric{{Source: "first_click_conversion_value", Label: "PO_FC"}})
	require.ErrorIs(t, err, models.ErrMissingColumn)
}

func TestPartitionIsDisjointAndExhaustive(t *testing.T) {
	tbl := nbTable()
	parts, dropped, err := Partition(tbl, "attribution_model", nbCategories)
	require.NoError(t, err)

	recognized := 0
	for _, row := range tbl.Rows {
		switch normalize(row[0]) {
		case "clicks only", "first touch", "last non-direct touch":
			recognized++
		}
	}
	total := 0
	for _, c := range nbCategories {
		total += len(parts[c.Label].Rows)
	}
	assert.Equal(t, recognized, total)
	assert.Equal(t, len(tbl.Rows)-recognized, dropped)
	assert.Len(t, parts["NB_CO"].Rows, 2)
	assert.Len(t, parts["NB_FT"].Rows, 2)
	assert.Len(t, parts["NB_LN"].Rows, 1)
}

func TestSumPartitioned(t *testing.T) {
	agg, dropped, err := SumPartitioned("nb", nbTable(), "attribution_model", "ltv_attributed_rev", nbCategories)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"NB_CO", "NB_FT", "NB_LN"}, agg.Columns)
	assert.Equal(t, []string{"k1", "k3", "k2"}, agg.Keys)
	assert.Equal(t, []float64{12.5, 5, 0}, agg.Sums["k1"])
	assert.Equal(t, []float64{0, 0, 7}, agg.Sums["k2"])
	assert.Equal(t, []float64{0, 0, 0}, agg.Sums["k3"])
}

func TestSumPartitionedMissingCategoryColumn(t *testing.T) {
	tbl := models.Table{Name: "nb", Columns: []string{"ltv_attributed_rev", models.KeyColumn}}
	_, _, err := SumPartitioned("nb", tbl, "attribution_model", "ltv_attributed_rev", nbCategories)
	require.ErrorIs(t, err, models.ErrMissingColumn)
}
