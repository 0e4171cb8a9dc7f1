package metrics

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/AngelCh415/perfmerge/internal/export"
	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/store"
)

type Service struct{ st *store.MemoryStore }

func NewService(st *store.MemoryStore) *Service { return &Service{st: st} }

type RunSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Output     string        `json:"output"`
	Rows       int           `json:"rows"`
	Issues     models.Issues `json:"issues"`
}

type TotalLine struct {
	Label     string  `json:"label"`
	Sum       float64 `json:"sum"`
	Formatted string  `json:"formatted"`
}

// Run resolves an id, "latest" included.
func (s *Service) Run(id string) (*models.RunResult, error) {
	if id == "latest" {
		return s.st.Latest()
	}
	return s.st.Get(id)
}

func (s *Service) Totals(id string) ([]TotalLine, error) {
	r, err := s.Run(id)
	if err != nil {
		return nil, err
	}
	out := make([]TotalLine, 0, len(r.Totals))
	for _, t := range r.Totals {
		out = append(out, TotalLine{Label: t.Label, Sum: round2(t.Sum), Formatted: export.FormatAmount(t.Sum)})
	}
	return out, nil
}

// QueryRuns lists runs newest first, paginated by limit/offset.
func (s *Service) QueryRuns(v url.Values) []RunSummary {
	runs := s.st.All()
	// orden determinista
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	rows := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, RunSummary{ID: r.ID, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Output: r.Output, Rows: r.Rows, Issues: r.Issues})
	}
	limit, offset := clampLimitOffset(atoiDef(v.Get("limit"), 100), atoiDef(v.Get("offset"), 0), len(rows))
	return paginate(rows, limit, offset)
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	if offset > n {
		offset = n
	}
	return limit, offset
}
func round2(f float64) float64 { return math.Round(f*100) / 100 }
