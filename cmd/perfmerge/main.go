package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/perfmerge/internal/config"
	"github.com/AngelCh415/perfmerge/internal/export"
	"github.com/AngelCh415/perfmerge/internal/ingest"
	"github.com/AngelCh415/perfmerge/internal/metrics"
	"github.com/AngelCh415/perfmerge/internal/pipeline"
	"github.com/AngelCh415/perfmerge/internal/store"
	"github.com/AngelCh415/perfmerge/internal/utils"
)

const defaultDB = "perfmerge.db"

type flags struct {
	config  string
	output  string
	ads     string
	tw      string
	nb      string
	polar   string
	policy  string
	persist bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "perfmerge",
		Short:         "Merge ad platform exports into one performance table",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(f.config)
			if err != nil {
				slog.Error("config", slog.String("err", err.Error()))
				return err
			}
			f.override(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				slog.Error("config", slog.String("err", err.Error()))
				return err
			}
			return run(cmd, cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", os.Getenv("PERFMERGE_CONFIG"), "YAML config file")
	fs.StringVarP(&f.output, "output", "o", "", "merged CSV path")
	fs.StringVar(&f.ads, "google-ads", "", "Google Ads export (path or URL)")
	fs.StringVar(&f.tw, "tw", "", "TW export (path or URL)")
	fs.StringVar(&f.nb, "nb", "", "NB export (path or URL)")
	fs.StringVar(&f.polar, "polar", "", "Polar export (path or URL)")
	fs.StringVar(&f.policy, "malformed", "", "malformed value policy: zero, warn or fail")
	fs.BoolVar(&f.persist, "persist", false, "store the run in the SQL sink ("+defaultDB+" when none is configured)")
	return cmd
}

// override applies only the flags given on the command line.
func (f flags) override(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("output", &cfg.Output, f.output)
	set("google-ads", &cfg.Sources.GoogleAds, f.ads)
	set("tw", &cfg.Sources.TW, f.tw)
	set("nb", &cfg.Sources.NB, f.nb)
	set("polar", &cfg.Sources.Polar, f.polar)
	set("malformed", &cfg.Malformed, f.policy)
	if f.persist && cfg.Sink.Driver == "" {
		cfg.Sink = config.Sink{Driver: "sqlite", DSN: defaultDB}
	}
	if !f.persist {
		cfg.Sink = config.Sink{}
	}
}

func run(cmd *cobra.Command, cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backoff := utils.NewBackoff(200*time.Millisecond, 4).WithJitter(100 * time.Millisecond)
	loader := ingest.NewLoader(ingest.NewHTTPClient(cfg.HTTPTimeout), logger, backoff)

	var sink pipeline.Persister
	if cfg.Sink.Driver != "" {
		s, err := store.OpenSQL(cfg.Sink.Driver, cfg.Sink.DSN, backoff)
		if err != nil {
			logger.Error("open sink", slog.String("driver", cfg.Sink.Driver), slog.String("err", err.Error()))
			return err
		}
		defer s.Close()
		sink = s
	}

	p := pipeline.New(loader, store.NewMemoryStore(), sink, metrics.NewCollectors(), logger, cfg)
	res, err := p.Run(ctx)
	if res == nil {
		return err
	}
	if rerr := export.Report(cmd.OutOrStdout(), res.Output, res.Totals); rerr != nil {
		return rerr
	}
	return err
}
