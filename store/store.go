// Package store persists job records.
//
// Implementations guarantee that every status change is atomic with
// respect to other writers: a claim or an advance only lands when the
// record still holds the expected status, and terminal records never
// change again.
package store

import (
	"context"
	"errors"
	"fmt"

	"transmute/config"
	"transmute/models"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrFinalized = errors.New("job already finalized")
)

type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	// Update applies p to a non-terminal job and returns the new record.
	Update(ctx context.Context, id string, p models.Patch) (*models.Job, error)
	// ListQueued returns queued jobs, oldest first.
	ListQueued(ctx context.Context) ([]*models.Job, error)
	// Claim moves a queued job to Starting. False means someone else won.
	Claim(ctx context.Context, id string) (bool, error)
	// Advance applies p only while the job still has status from.
	Advance(ctx context.Context, id string, from models.Status, p models.Patch) (bool, error)
	// Cancel marks a queued or starting job cancelled and returns the
	// record as it stands after the attempt.
	Cancel(ctx context.Context, id string) (*models.Job, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "pebble":
		return OpenPebble(cfg.JobsDBPath)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
