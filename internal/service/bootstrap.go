package service

import (
	"context"
	"fmt"
	"strings"

	"opportunity-engine/internal/config"
	"opportunity-engine/internal/db"
	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/export"
	"opportunity-engine/pkg/logger"
)

// RequireCredential fails fast when no provider API key is configured.
func RequireCredential(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return fmt.Errorf("set MOE_PROVIDER_API_KEY, SE_RANKING_API_KEY or provider.api_key: %w", api.ErrMissingCredential)
	}
	return nil
}

// Outputs holds the report destinations built from configuration.
type Outputs struct {
	Exporter *export.Exporter
	DB       *db.DB

	sink export.Sink
}

// OpenOutputs opens the export sink and, when a database URL is configured,
// the warehouse. Migrations run first if enabled.
func OpenOutputs(ctx context.Context, cfg *config.Config) (*Outputs, error) {
	log := logger.GetLogger().WithField("component", "bootstrap")

	sink, err := export.NewSink(ctx, cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("open export sink: %w", err)
	}
	out := &Outputs{Exporter: export.NewExporter(sink), sink: sink}

	if cfg.Database.URL == "" {
		log.Debug("No database configured, warehouse disabled")
		return out, nil
	}

	if cfg.Database.MigrateOnStart {
		if err := db.RunMigrations(cfg.Database.URL); err != nil {
			out.Close()
			return nil, err
		}
		log.Info("Database migrations applied")
	}

	warehouse, err := db.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.DB = warehouse
	return out, nil
}

// Options converts the outputs into runner options.
func (o *Outputs) Options() []RunnerOption {
	opts := []RunnerOption{WithExporter(o.Exporter)}
	if o.DB != nil {
		opts = append(opts, WithSinks(o.DB), WithArchive(o.DB))
	}
	return opts
}

func (o *Outputs) Close() {
	if o.DB != nil {
		o.DB.Close()
	}
	if o.sink != nil {
		if err := o.sink.Close(); err != nil {
			logger.GetLogger().WithError(err).Warn("Failed to close export sink")
		}
	}
}
