package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"transmute/blob"
	"transmute/cache"
	"transmute/config"
	"transmute/detect"
	"transmute/encoder"
	"transmute/logger"
	"transmute/models"
	"transmute/store"
)

// Encoder runs one transcode operation.
type Encoder interface {
	Encode(ctx context.Context, op encoder.Op, input, output string, p encoder.Params) (string, error)
}

// FailureRecorder keeps the error detail of failed jobs.
type FailureRecorder interface {
	Record(jobID string, err error, jobData any) error
}

// Settings are the worker's paths, buckets and pacing.
type Settings struct {
	UploadDir    string
	OutputDir    string
	UploadBucket string
	OutputBucket string
	Workers      int
	PollInterval time.Duration
}

// SettingsFromConfig reads worker settings from the service configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		UploadDir:    cfg.UploadDir,
		OutputDir:    cfg.OutputDir,
		UploadBucket: cfg.UploadBucket,
		OutputBucket: cfg.OutputBucket,
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.WorkerPollInterval,
	}
}

// Deps are the collaborators a Worker needs. Mirror, Ledger and Detector
// are optional.
type Deps struct {
	Store    store.Store
	Blobs    blob.Store
	Encoder  Encoder
	Ledger   FailureRecorder
	Mirror   cache.Mirror
	Detector *detect.Detector
}

// Worker drains queued jobs from the store.
type Worker struct {
	store    store.Store
	blobs    blob.Store
	encoder  Encoder
	ledger   FailureRecorder
	mirror   cache.Mirror
	detector *detect.Detector
	settings Settings
}

func New(d Deps, s Settings) *Worker {
	if d.Mirror == nil {
		d.Mirror = cache.Nop{}
	}
	if d.Detector == nil {
		d.Detector = detect.Default
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	return &Worker{
		store:    d.Store,
		blobs:    d.Blobs,
		encoder:  d.Encoder,
		ledger:   d.Ledger,
		mirror:   d.Mirror,
		detector: d.Detector,
		settings: s,
	}
}

// Run starts the configured number of loops and blocks until ctx is
// cancelled and every in-flight job has finished.
func (w *Worker) Run(ctx context.Context) {
	logger.Infof("Starting %d worker loop(s), poll interval %v", w.settings.Workers, w.settings.PollInterval)
	var wg sync.WaitGroup
	for i := 0; i < w.settings.Workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, logger.With(fmt.Sprintf("worker %d", n)))
		}(i)
	}
	wg.Wait()
	logger.Info("All worker loops stopped")
}

// loop lists queued jobs oldest first, processes them one by one and
// sleeps between passes.
func (w *Worker) loop(ctx context.Context, log logger.Scoped) {
	for {
		if _, err := w.RunOnce(ctx, log); err != nil {
			log.Errorf("Failed to list queued jobs: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Infof("Worker loop stopped")
			return
		case <-time.After(w.settings.PollInterval):
		}
	}
}

// RunOnce makes one pass over the queue and returns how many jobs this
// caller claimed.
func (w *Worker) RunOnce(ctx context.Context, log logger.Scoped) (int, error) {
	jobs, err := w.store.ListQueued(ctx)
	if err != nil {
		return 0, err
	}
	if len(jobs) > 0 {
		log.Debugf("Found %d queued job(s)", len(jobs))
	}

	claimed := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		// A started job runs to completion even when shutdown begins.
		if w.processJob(context.WithoutCancel(ctx), j, log.With("job "+j.ID)) {
			claimed++
		}
	}
	return claimed, nil
}

// mirrorJob copies j into the status cache. Failures only cost freshness.
func (w *Worker) mirrorJob(ctx context.Context, j *models.Job, log logger.Scoped) {
	if err := w.mirror.Put(ctx, j); err != nil {
		log.Warnf("Failed to mirror status: %v", err)
	}
}

