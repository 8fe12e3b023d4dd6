package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/metrics"
)

type options struct {
	configFile string
	noAlerts   bool
	cfg        *config.Config
}

func rootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Plant sensor ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.noAlerts {
				cfg.Alerts.Enabled = false
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&opts.noAlerts, "no-alerts", false, "Skip the alerting pass")

	root.AddCommand(runCommand(opts), scheduleCommand(opts), archiveCommand(opts))
	return root
}

func runCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, opts.cfg, nil)
		},
	}
}

func scheduleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return schedule(ctx, opts.cfg)
		},
	}
}

func archiveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move readings past the retention window to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, opts.cfg, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.withArchive(ctx); err != nil {
				return err
			}
			res, err := p.uc.Archive(ctx)
			if err != nil {
				return fmt.Errorf("archive failed: %w", err)
			}
			log.Printf("Archive finished: %d rows, key %q", res.Rows, res.Key)
			return nil
		},
	}
}

// runOnce builds a pipeline with its own database handle and missing-data
// log and runs it
func runOnce(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	p, err := newPipeline(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.uc.Run(ctx)
	if err != nil {
		return err
	}
	if report.Err != nil {
		log.Printf("Warning: run finished with record failures: %v", report.Err)
	}
	return nil
}

func schedule(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("Serving metrics on %s/metrics", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Error: metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Run once on startup
	if err := runOnce(ctx, cfg, m); err != nil {
		log.Printf("Initial pipeline run failed: %v", err)
	}

	c := newScheduler(cfg.Limits.Location())
	_, err := c.AddFunc(cfg.Schedule.Cron, func() {
		if err := runOnce(ctx, cfg, m); err != nil {
			log.Printf("Scheduled pipeline run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to set up cron job: %w", err)
	}

	log.Printf("Pipeline has been scheduled with %q", cfg.Schedule.Cron)
	c.Start()

	<-ctx.Done()
	log.Println("Shutting down scheduler...")
	<-c.Stop().Done()
	return nil
}

// newScheduler returns a cron that skips a tick while the previous run is
// still going, so runs never overlap
func newScheduler(loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}
