package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/utils"
)

type RunRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Output      string
	Rows        int
	BadDates    int
	BadIDs      int
	BadNumbers  int
	DroppedRows int
}

type TotalRecord struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"index;size:36"`
	Label string
	Sum   float64
}

// CellRecord is one reconciled cell in long format: (key, column) -> value.
type CellRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index:idx_cell_run_key;size:36"`
	UniqueKey  string `gorm:"index:idx_cell_run_key"`
	RowIndex   int
	ColumnName string
	Value      string
}

type SQLSink struct {
	db      *gorm.DB
	backoff utils.Backoff
	batch   int
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unknown sink driver %q", driver)
}

func OpenSQL(driver, dsn string, backoff utils.Backoff) (*SQLSink, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s sink: %w", driver, err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &TotalRecord{}, &CellRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sink: %w", err)
	}
	return &SQLSink{db: db, backoff: backoff, batch: 500}, nil
}

// Persist writes a run in one transaction. Re-persisting the same run id
// replaces its totals and cells.
func (s *SQLSink) Persist(ctx context.Context, r *models.RunResult) error {
	rec := RunRecord{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Output:      r.Output,
		Rows:        r.Rows,
		BadDates:    r.Issues.BadDates,
		BadIDs:      r.Issues.BadIDs,
		BadNumbers:  r.Issues.BadNumbers,
		DroppedRows: r.Issues.DroppedRows,
	}
	totals := make([]TotalRecord, 0, len(r.Totals))
	for _, t := range r.Totals {
		totals = append(totals, TotalRecord{RunID: r.ID, Label: t.Label, Sum: t.Sum})
	}
	cells := make([]CellRecord, 0, len(r.Frame.Rows)*len(r.Frame.Columns))
	for i, row := range r.Frame.Rows {
		for j, c := range row.Cells {
			if j >= len(r.Frame.Columns) {
				break
			}
			cells = append(cells, CellRecord{RunID: r.ID, UniqueKey: row.Key, RowIndex: i, ColumnName: r.Frame.Columns[j], Value: c.String()})
		}
	}

	return s.backoff.Do(ctx, func(int) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("run_id = ?", r.ID).Delete(&TotalRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("run_id = ?", r.ID).Delete(&CellRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Save(&rec).Error; err != nil {
				return err
			}
			if len(totals) > 0 {
				if err := tx.Create(&totals).Error; err != nil {
					return err
				}
			}
			if len(cells) > 0 {
				if err := tx.CreateInBatches(&cells, s.batch).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *SQLSink) Runs(ctx context.Context) ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.WithContext(ctx).Order("started_at desc").Find(&out).Error
	return out, err
}

func (s *SQLSink) Totals(ctx context.Context, runID string) ([]TotalRecord, error) {
	var out []TotalRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}

func (s *SQLSink) Cells(ctx context.Context, runID string) ([]CellRecord, error) {
	var out []CellRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("row_index, id").Find(&out).Error
	return out, err
}

func (s *SQLSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
