package cmd

import (
	"context"
	"fmt"
	"os"

	"transmute/blob"
	"transmute/cache"
	"transmute/config"
	"transmute/encoder"
	"transmute/failures"
	"transmute/job"
	"transmute/logger"
	"transmute/routes"
	"transmute/store"
	"transmute/urlsign"
)

// app holds the long-lived collaborators a command opens.
type app struct {
	cfg    *config.Config
	store  store.Store
	blobs  blob.Store
	mirror cache.Mirror
	ledger *failures.Ledger
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{config.GetDataDir(), cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	a := &app{cfg: cfg}
	var err error

	logger.Debugf("Opening %s job store", cfg.StoreDriver)
	if a.store, err = store.Open(ctx, cfg); err != nil {
		return nil, err
	}

	logger.Debug("Initializing failures database")
	if a.ledger, err = failures.Open(cfg.FailuresDB); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.SigningSecret == "" && (cfg.BlobDriver == "local" || cfg.BlobDriver == "sftp") {
		logger.Warn("SIGNING_SECRET not set; download links will stop working after a restart")
	}
	signer, err := urlsign.New([]byte(cfg.SigningSecret))
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.blobs, err = blob.Open(ctx, cfg, signer); err != nil {
		a.Close()
		return nil, err
	}

	if a.mirror, err = cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix); err != nil {
		a.Close()
		return nil, err
	}

	logger.Infof("Using %s job store, %s blob backend", cfg.StoreDriver, cfg.BlobDriver)
	return a, nil
}

func (a *app) worker() *job.Worker {
	registry := encoder.New(encoder.OptionsFromConfig(a.cfg))
	return job.New(job.Deps{
		Store:   a.store,
		Blobs:   a.blobs,
		Encoder: registry,
		Ledger:  a.ledger,
		Mirror:  a.mirror,
	}, job.SettingsFromConfig(a.cfg))
}

func (a *app) server() *routes.Server {
	return &routes.Server{
		Store:  a.store,
		Blobs:  a.blobs,
		Mirror: a.mirror,
		Ledger: a.ledger,
		Settings: routes.Settings{
			UploadBucket:   a.cfg.UploadBucket,
			OutputBucket:   a.cfg.OutputBucket,
			MaxUploadBytes: a.cfg.MaxUploadBytes,
			SignedURLTTL:   a.cfg.SignedURLTTL,
		},
	}
}

func (a *app) Close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	if c, ok := a.blobs.(interface{ Close() error }); ok {
		c.Close()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
