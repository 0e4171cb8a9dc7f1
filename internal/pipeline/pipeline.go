package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/perfmerge/internal/aggregate"
	"github.com/AngelCh415/perfmerge/internal/config"
	"github.com/AngelCh415/perfmerge/internal/export"
	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/keys"
	"github.com/AngelCh415/perfmerge/internal/metrics"
	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/reconcile"
	"github.com/AngelCh415/perfmerge/internal/store"
)

var ErrMalformed = errors.New("malformed values")

type Persister interface {
	Persist(ctx context.Context, r *models.RunResult) error
}

type Pipeline struct {
	loader *ingest.Loader
	st     *store.MemoryStore
	sink   Persister
	col    *metrics.Collectors
	log    *slog.Logger
	cfg    config.Config
	keys   keys.Deriver
	mu     sync.Mutex
}

// New wires a pipeline. sink and col may be nil.
func New(loader *ingest.Loader, st *store.MemoryStore, sink Persister, col *metrics.Collectors, log *slog.Logger, cfg config.Config) *Pipeline {
	return &Pipeline{
		loader: loader,
		st:     st,
		sink:   sink,
		col:    col,
		log:    log,
		cfg:    cfg,
		keys:   keys.New(cfg.IDMinLen, cfg.IDMaxLen),
	}
}

// sourceTable is the unit handed from stage to stage.
type sourceTable struct {
	src   Source
	table models.Table
}

// Run executes load, normalize, key, aggregate, reconcile and export in order.
// Runs are serialized; a failed stage aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res, err := p.run(ctx, start)
	p.col.ObserveRun(res, err, time.Since(start))
	if err != nil {
		p.log.Error("merge failed", slog.String("err", err.Error()))
		return nil, err
	}
	p.st.Put(res)
	p.log.Info("merge complete", slog.String("run_id", res.ID), slog.String("output", res.Output),
		slog.Int("rows", res.Rows), slog.Duration("took", res.FinishedAt.Sub(res.StartedAt)))

	if p.sink != nil {
		if err := p.sink.Persist(ctx, res); err != nil {
			return res, fmt.Errorf("persist run %s: %w", res.ID, err)
		}
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, start time.Time) (*models.RunResult, error) {
	base, others := Sources(p.cfg.Sources)
	srcs := append([]Source{base}, others...)

	tables, err := p.load(ctx, srcs)
	if err != nil {
		return nil, err
	}
	tables, numIss := p.normalize(tables)
	tables, keyIss, err := p.key(tables)
	if err != nil {
		return nil, err
	}
	aggs, aggIss, err := p.aggregate(tables[1:])
	if err != nil {
		return nil, err
	}
	iss := numIss.Add(keyIss).Add(aggIss)
	if err := p.checkMalformed(iss); err != nil {
		return nil, err
	}
	frame, err := p.reconcile(tables[0].table, aggs)
	if err != nil {
		return nil, err
	}
	if err := export.WriteCSV(p.cfg.Output, frame); err != nil {
		return nil, err
	}

	return &models.RunResult{
		ID:         uuid.NewString(),
		StartedAt:  start,
		FinishedAt: time.Now(),
		Output:     p.cfg.Output,
		Rows:       len(frame.Rows),
		Columns:    append([]string{models.KeyColumn}, frame.Columns...),
		Totals:     export.Totals(frame, KnownLabels),
		Issues:     iss,
		Sources:    stats(tables),
		Frame:      frame,
	}, nil
}

func (p *Pipeline) load(ctx context.Context, srcs []Source) ([]sourceTable, error) {
	out := make([]sourceTable, 0, len(srcs))
	for _, s := range srcs {
		t, err := p.loader.Load(ctx, s.Name, s.Location)
		if err != nil {
			return nil, err
		}
		p.col.ObserveLoad(s.Name, len(t.Rows))
		out = append(out, sourceTable{src: s, table: t})
	}
	return out, nil
}

func (p *Pipeline) normalize(in []sourceTable) ([]sourceTable, models.Issues) {
	var iss models.Issues
	out := make([]sourceTable, len(in))
	for i, st := range in {
		t, bad := ingest.CoerceNumeric(st.table, st.src.Numeric...)
		iss.BadNumbers += bad
		out[i] = sourceTable{src: st.src, table: t}
		p.log.Debug("numeric columns coerced", slog.String("source", st.src.Name), slog.Int("rows", len(t.Rows)), slog.Int("bad", bad))
	}
	return out, iss
}

func (p *Pipeline) key(in []sourceTable) ([]sourceTable, models.Issues, error) {
	var iss models.Issues
	out := make([]sourceTable, len(in))
	for i, st := range in {
		t, ki, err := p.keys.Attach(st.table, st.src.Keys)
		if err != nil {
			return nil, iss, err
		}
		iss = iss.Add(ki)
		out[i] = sourceTable{src: st.src, table: t}
		p.log.Debug("keys attached", slog.String("source", st.src.Name), slog.Int("rows", len(t.Rows)),
			slog.Int("bad_dates", ki.BadDates), slog.Int("bad_ids", ki.BadIDs))
	}
	return out, iss, nil
}

func (p *Pipeline) aggregate(in []sourceTable) ([]models.Aggregate, models.Issues, error) {
	var iss models.Issues
	out := make([]models.Aggregate, 0, len(in))
	for _, st := range in {
		if st.src.Split != nil {
			s := st.src.Split
			a, dropped, err := aggregate.SumPartitioned(st.src.Name, st.table, s.Column, s.Metric, s.Categories)
			if err != nil {
				return nil, iss, err
			}
			iss.DroppedRows += dropped
			p.col.ObserveDropped(st.src.Name, dropped)
			p.log.Debug("source aggregated", slog.String("source", st.src.Name), slog.Int("keys", len(a.Keys)), slog.Int("dropped", dropped))
			out = append(out, a)
			continue
		}
		a, err := aggregate.Sum(st.src.Name, st.table, st.src.Metrics)
		if err != nil {
			return nil, iss, err
		}
		p.log.Debug("source aggregated", slog.String("source", st.src.Name), slog.Int("keys", len(a.Keys)))
		out = append(out, a)
	}
	return out, iss, nil
}

func (p *Pipeline) reconcile(base models.Table, aggs []models.Aggregate) (models.Frame, error) {
	bf, err := reconcile.FromTable(base)
	if err != nil {
		return models.Frame{}, err
	}
	frames := make([]models.Frame, 0, len(aggs))
	for _, a := range aggs {
		frames = append(frames, reconcile.FromAggregate(a))
	}
	out := reconcile.Chain(bf, frames...)
	p.log.Debug("sources reconciled", slog.Int("base_rows", len(bf.Rows)), slog.Int("joined", len(frames)), slog.Int("rows", len(out.Rows)))
	return out, nil
}

func (p *Pipeline) checkMalformed(iss models.Issues) error {
	if iss.Recovered() == 0 && iss.DroppedRows == 0 {
		return nil
	}
	switch p.cfg.Malformed {
	case config.PolicyWarn:
		p.log.Warn("malformed values recovered", slog.Int("bad_dates", iss.BadDates), slog.Int("bad_ids", iss.BadIDs),
			slog.Int("bad_numbers", iss.BadNumbers), slog.Int("dropped_rows", iss.DroppedRows))
	case config.PolicyFail:
		if iss.Recovered() > 0 {
			return fmt.Errorf("%w: %d dates, %d ids, %d numbers", ErrMalformed, iss.BadDates, iss.BadIDs, iss.BadNumbers)
		}
	}
	return nil
}

func stats(tables []sourceTable) []models.SourceStat {
	out := make([]models.SourceStat, 0, len(tables))
	for _, st := range tables {
		ki := st.table.Index(models.KeyColumn)
		distinct := make(map[string]struct{}, len(st.table.Rows))
		for _, row := range st.table.Rows {
			distinct[st.table.Cell(row, ki)] = struct{}{}
		}
		out = append(out, models.SourceStat{Name: st.src.Name, Location: st.src.Location, Rows: len(st.table.Rows), Keys: len(distinct)})
	}
	return out
}
