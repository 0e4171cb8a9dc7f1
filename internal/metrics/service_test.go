package metrics

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/store"
)

func seeded() *Service {
	st := store.NewMemoryStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		st.Put(&models.RunResult{
			ID:        id,
			StartedAt: t0.Add(time.Duration(i) * time.Hour),
			Rows:      i + 1,
			Totals:    []models.Total{{Label: "NB_CO", Sum: 1001234.499}, {Label: "PO_LP", Sum: 0}},
		})
	}
	return NewService(st)
}

func TestQueryRunsNewestFirst(t *testing.T) {
	s := seeded()
	rows := s.QueryRuns(url.Values{})
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
}

func TestQueryRunsPagination(t *testing.T) {
	s := seeded()
	rows := s.QueryRuns(url.Values{"limit": {"1"}, "offset": {"1"}})
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)

	assert.Empty(t, s.QueryRuns(url.Values{"offset": {"10"}}))
	assert.Len(t, s.QueryRuns(url.Values{"limit": {"bogus"}}), 3)
}

func TestTotalsLatest(t *testing.T) {
	s := seeded()
	lines, err := s.Totals("latest")
	require.NoError(t, err)
	assert.Equal(t, []TotalLine{
		{Label: "NB_CO", Sum: 1001234.5, Formatted: "1,001,234.50"},
		{Label: "PO_LP", Sum: 0, Formatted: "0.00"},
	}, lines)

	_, err = s.Totals("zzz")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClampLimitOffset(t *testing.T) {
	l, o := clampLimitOffset(5000, -3, 10)
	assert.Equal(t, 1000, l)
	assert.Equal(t, 0, o)
	l, o = clampLimitOffset(0, 20, 10)
	assert.Equal(t, 10, l)
	assert.Equal(t, 10, o)
}
