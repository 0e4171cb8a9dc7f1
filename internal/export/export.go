package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/models"
	"github.com/AngelCh415/perfmerge/internal/reconcile"
)

// WriteCSV writes the reconciled frame, key column first.
func WriteCSV(path string, f models.Frame) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := Write(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func Write(w io.Writer, f models.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(reconcile.Records(f)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Totals sums each listed column present in f, in the order given.
func Totals(f models.Frame, labels []string) []models.Total {
	var out []models.Total
	for _, label := range labels {
		ci := f.Index(label)
		if ci < 0 {
			continue
		}
		sum := decimal.Zero
		for _, r := range f.Rows {
			if ci >= len(r.Cells) {
				continue
			}
			switch c := r.Cells[ci]; c.Kind {
			case models.Number:
				sum = sum.Add(decimal.NewFromFloat(c.Num))
			case models.Text:
				if d, ok := ingest.ParseDecimal(c.Text); ok {
					sum = sum.Add(d)
				}
			}
		}
		out = append(out, models.Total{Label: label, Sum: sum.InexactFloat64()})
	}
	return out
}

func FormatAmount(f float64) string { return humanize.FormatFloat("#,###.##", f) }

// Report prints the confirmation line and one "label: 1,234.56" line per total.
func Report(w io.Writer, output string, totals []models.Total) error {
	if _, err := fmt.Fprintf(w, "\n✅ saved merged file as '%s'\n", output); err != nil {
		return err
	}
	for _, t := range totals {
		if _, err := fmt.Fprintf(w, "%s: %s\n", t.Label, FormatAmount(t.Sum)); err != nil {
			return err
		}
	}
	return nil
}
