package main

import (
	"context"
	"fmt"
	"log"

	"github.com/abelzeko/plant-monitor/internal/alerts"
	"github.com/abelzeko/plant-monitor/internal/archive"
	"github.com/abelzeko/plant-monitor/internal/config"
	"github.com/abelzeko/plant-monitor/internal/integration"
	"github.com/abelzeko/plant-monitor/internal/metrics"
	"github.com/abelzeko/plant-monitor/internal/repository"
	"github.com/abelzeko/plant-monitor/internal/transform"
	"github.com/abelzeko/plant-monitor/internal/usecases"
)

type pipeline struct {
	uc      *usecases.PipelineUseCase
	repo    *repository.SQLPlantRepository
	cfg     *config.Config
	metrics *metrics.Metrics
}

// newPipeline wires one run. Each run gets a fresh missing-data log, which
// replaces the file left by the previous run.
func newPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*pipeline, error) {
	repo, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	var alerter *alerts.Alerter
	if cfg.Alerts.Enabled {
		sender, err := buildSender(cfg.Alerts, cfg.API)
		if err != nil {
			repo.Close()
			return nil, err
		}
		alerter = alerts.NewAlerter(cfg.Limits, sender, m)
	}

	uc := usecases.NewPipelineUseCase(
		integration.NewPlantAPI(cfg.API, integration.NewMissingLog(cfg.MissingLog.Path), m),
		transform.NewNormalizer(),
		transform.NewValidator(cfg.Limits),
		alerter,
		repository.NewLoader(repo, m),
		m,
	)
	return &pipeline{uc: uc, repo: repo, cfg: cfg, metrics: m}, nil
}

func (p *pipeline) withArchive(ctx context.Context) error {
	store, err := integration.NewS3Store(ctx, p.cfg.Archive)
	if err != nil {
		return fmt.Errorf("failed to initialize archive store: %w", err)
	}
	p.uc.WithArchiver(archive.NewArchiver(p.repo, store, p.cfg.Archive, p.cfg.Limits.Location(), p.metrics))
	return nil
}

func (p *pipeline) Close() error {
	return p.repo.Close()
}

// buildSender combines every configured notification transport, falling back
// to the log when none is set
func buildSender(cfg config.AlertsConfig, api config.APIConfig) (alerts.Sender, error) {
	var senders alerts.MultiSender

	if len(cfg.ShoutrrrURLs) > 0 {
		s, err := integration.NewShoutrrrSender(cfg.ShoutrrrURLs, api.Timeout)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}
	if cfg.TelegramToken != "" {
		s, err := integration.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}

	switch len(senders) {
	case 0:
		log.Println("Warning: alerts enabled without a transport, logging notifications only")
		return alerts.LogSender{}, nil
	case 1:
		return senders[0], nil
	default:
		return senders, nil
	}
}
