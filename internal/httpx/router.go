package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AngelCh415/perfmerge/internal/export"
	"github.com/AngelCh415/perfmerge/internal/metrics"
	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/store"
	"github.com/AngelCh415/perfmerge/internal/utils"
)

// Runner triggers one merge run.
type Runner interface {
	Run(ctx context.Context) (*models.RunResult, error)
}

// NewRouter mounts health, merge and run-history routes. col may be nil, in
// which case /metrics is not served.
func NewRouter(log *slog.Logger, runner Runner, mSvc *metrics.Service, col *metrics.Collectors) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })

	mux.Post("/merge/run", func(w http.ResponseWriter, r *http.Request) {
		res, err := runner.Run(r.Context())
		if err != nil && res == nil {
			http.Error(w, err.Error(), 502)
			return
		}
		if err != nil {
			// merged and written, only the sink failed
			log.Warn("run not persisted", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
		}
		writeJSON(w, res)
	})

	mux.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mSvc.QueryRuns(r.URL.Query()))
	})

	mux.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		res, err := mSvc.Run(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, res)
	})

	mux.Get("/runs/{id}/totals", func(w http.ResponseWriter, r *http.Request) {
		lines, err := mSvc.Totals(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, lines)
	})

	mux.Get("/runs/{id}/csv", func(w http.ResponseWriter, r *http.Request) {
		res, err := mSvc.Run(chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := export.Write(w, res.Frame); err != nil {
			log.Error("stream csv", slog.String("run_id", res.ID), slog.String("err", err.Error()))
		}
	})

	if col != nil {
		mux.Method(http.MethodGet, "/metrics", col.Handler())
	}

	return mux
}

func writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), 404)
		return
	}
	http.Error(w, err.Error(), 500)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
