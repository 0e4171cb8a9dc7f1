package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/perfmerge/internal/metrics"
	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/store"
)

type fakeRunner struct {
	st  *store.MemoryStore
	res *models.RunResult
	err error
}

func (f *fakeRunner) Run(context.Context) (*models.RunResult, error) {
	if f.res != nil {
		f.st.Put(f.res)
	}
	return f.res, f.err
}

func sampleRun(id string, at time.Time) *models.RunResult {
	return &models.RunResult{
		ID:         id,
		StartedAt:  at,
		FinishedAt: at.Add(time.Second),
		Output:     "merged_performance_data.csv",
		Rows:       1,
		Columns:    []string{models.KeyColumn, "TW_FC"},
		Totals:     []models.Total{{Label: "TW_FC", Sum: 1234.5}},
		Frame: models.Frame{
			Columns: []string{"TW_FC"},
			Rows:    []models.FrameRow{{Key: "4529212345677654321x", Cells: []models.Value{models.NumberValue(1234.5)}}},
		},
	}
}

func newServer(t *testing.T, r *fakeRunner) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(log, r, metrics.NewService(r.st), metrics.NewCollectors()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeRunner{st: store.NewMemoryStore()})
	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body)
	code, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, 200, code)
}

func TestMergeRunThenQuery(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newServer(t, &fakeRunner{st: st, res: sampleRun("r1", time.Now())})

	resp, err := http.Post(srv.URL+"/merge/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var got models.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "r1", got.ID)

	code, body := get(t, srv.URL+"/runs/latest/totals")
	require.Equal(t, 200, code)
	var lines []metrics.TotalLine
	require.NoError(t, json.Unmarshal([]byte(body), &lines))
	assert.Equal(t, []metrics.TotalLine{{Label: "TW_FC", Sum: 1234.5, Formatted: "1,234.50"}}, lines)

	code, body = get(t, srv.URL+"/runs")
	require.Equal(t, 200, code)
	assert.Contains(t, body, `"id": "r1"`)

	code, body = get(t, srv.URL+"/runs/r1/csv")
	require.Equal(t, 200, code)
	assert.Equal(t, "unique_key,TW_FC\n4529212345677654321x,1234.5\n", body)
}

func TestMergeRunFailure(t *testing.T) {
	srv := newServer(t, &fakeRunner{st: store.NewMemoryStore(), err: errors.New("unreadable source tw")})
	resp, err := http.Post(srv.URL+"/merge/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 502, resp.StatusCode)
}

func TestMergeRunSinkFailureStillReturnsResult(t *testing.T) {
	st := store.NewMemoryStore()
	srv := newServer(t, &fakeRunner{st: st, res: sampleRun("r2", time.Now()), err: errors.New("persist run r2: db down")})
	resp, err := http.Post(srv.URL+"/merge/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestUnknownRun(t *testing.T) {
	srv := newServer(t, &fakeRunner{st: store.NewMemoryStore()})
	for _, p := range []string{"/runs/nope", "/runs/nope/totals", "/runs/latest"} {
		code, _ := get(t, srv.URL+p)
		assert.Equal(t, 404, code, p)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, &fakeRunner{st: store.NewMemoryStore()})
	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, 200, code)
	assert.True(t, strings.Contains(body, "perfmerge_reconciled_rows"))
}
