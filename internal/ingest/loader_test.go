package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/perfmerge/internal/utils"
)

func newTestLoader() *Loader {
	return NewLoader(NewHTTPClient(2*time.Second), slog.New(slog.NewTextHandler(os.Stderr, nil)), utils.NewBackoff(time.Millisecond, 2))
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadStripsBOMAndSniffsSemicolon(t *testing.T) {
	p := writeFile(t, "tw.csv", "\xEF\xBB\xBFEvent Date;Campaign ID; Adset ID ;Pixel CV LP\n2024-01-01;123456;654321;\"1,234.5\"\n")
	tbl, err := newTestLoader().Load(context.Background(), "tw", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"event_date", "campaign_id", "adset_id", "pixel_cv_lp"}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"2024-01-01", "123456", "654321", "1,234.5"}, tbl.Rows[0])
}

func TestLoadKeepsNaNLikeTextVerbatim(t *testing.T) {
	p := writeFile(t, "nb.csv", "date,campaign_id,attribution_model\n2024-01-01,NA,NaN\n")
	tbl, err := newTestLoader().Load(context.Background(), "nb", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "NA", "NaN"}, tbl.Rows[0])
}

func TestLoadFallsBackOnRaggedRows(t *testing.T) {
	p := writeFile(t, "ads.csv", "date,campaign_id,ad_group_id,cost\n2024-01-01,1,2\n2024-01-02,1,2,3,4\n")
	tbl, err := newTestLoader().Load(context.Background(), "google_ads", p)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"2024-01-01", "1", "2", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"2024-01-02", "1", "2", "3"}, tbl.Rows[1])
}

func TestLoadHeaderOnly(t *testing.T) {
	p := writeFile(t, "polar.csv", "date,campaign_id,adset_id\n")
	tbl, err := newTestLoader().Load(context.Background(), "polar", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "campaign_id", "adset_id"}, tbl.Columns)
	assert.Empty(t, tbl.Rows)
}

func TestLoadFallbackKeepsSniffedDelimiter(t *testing.T) {
	cases := map[string]struct {
		body string
		rows [][]string
	}{
		"header only": {body: "date;campaign_id;adset_id;v\n"},
		"short row": {
			body: "date;campaign_id;adset_id;v\n2024-01-01;1234567;7654321\n",
			rows: [][]string{{"2024-01-01", "1234567", "7654321", ""}},
		},
		"tab header only": {body: "date\tcampaign_id\tadset_id\tv\n"},
		"pipe short row": {
			body: "date|campaign_id|adset_id|v\n2024-01-01|1234567\n",
			rows: [][]string{{"2024-01-01", "1234567", "", ""}},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, "nb.csv", tc.body)
			tbl, err := newTestLoader().Load(context.Background(), "nb", p)
			require.NoError(t, err)
			assert.Equal(t, []string{"date", "campaign_id", "adset_id", "v"}, tbl.Columns)
			assert.Equal(t, tc.rows, tbl.Rows)
		})
	}
}

func TestLoadMissingFileIsUnreadable(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), "tw", filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestLoadEmptyFileIsUnreadable(t *testing.T) {
	p := writeFile(t, "empty.csv", "")
	_, err := newTestLoader().Load(context.Background(), "tw", p)
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', SniffDelimiter([]byte("a,b,c\n1,2,3")))
	assert.Equal(t, ';', SniffDelimiter([]byte("a;b;c\n")))
	assert.Equal(t, '\t', SniffDelimiter([]byte("a\tb\tc")))
	assert.Equal(t, '|', SniffDelimiter([]byte("a|b")))
	assert.Equal(t, ';', SniffDelimiter([]byte("\"x,y,z\";b;c")), "commas inside quotes do not count")
	assert.Equal(t, ',', SniffDelimiter([]byte("single")))
}

func TestLoadRemoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("date,campaign_id,adset_id\n2024-01-01,123456,654321\n"))
	}))
	defer srv.Close()

	tbl, err := newTestLoader().Load(context.Background(), "polar", srv.URL+"/polar.csv")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadRemoteNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestLoader().Load(context.Background(), "polar", srv.URL)
	require.ErrorIs(t, err, ErrUnreadable)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadRemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	l := NewLoader(NewHTTPClient(50*time.Millisecond), slog.New(slog.NewTextHandler(os.Stderr, nil)), utils.NewBackoff(time.Millisecond, 0))
	_, err := l.Load(context.Background(), "tw", srv.URL)
	require.ErrorIs(t, err, ErrUnreadable)
}
