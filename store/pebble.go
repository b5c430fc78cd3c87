package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pebble "github.com/cockroachdb/pebble"

	"transmute/models"
)

// Key layout:
//
//	job/<id>                      JSON record
//	queued/<created_at ns>/<id>   empty; present while the job is queued
const (
	jobPrefix    = "job/"
	queuedPrefix = "queued/"
)

// Pebble is an embedded single-process store. A mutex serializes every
// read-modify-write so compare-and-swap holds across worker goroutines.
type Pebble struct {
	mu sync.Mutex
	db *pebble.DB
}

func OpenPebble(dbPath string) (*Pebble, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	return &Pebble{db: db}, nil
}

func jobKey(id string) []byte { return []byte(jobPrefix + id) }

func queuedKey(j *models.Job) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", queuedPrefix, j.CreatedAt.UnixNano(), j.ID))
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

func (s *Pebble) load(id string) (*models.Job, error) {
	data, closer, err := s.db.Get(jobKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	defer closer.Close()

	var j models.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &j, nil
}

// save writes j and keeps the queued index in step with its status.
func (s *Pebble) save(before, j *models.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(jobKey(j.ID), data, nil); err != nil {
		return err
	}
	wasQueued := before != nil && before.Status == models.StatusQueued
	isQueued := j.Status == models.StatusQueued
	switch {
	case isQueued && !wasQueued:
		err = b.Set(queuedKey(j), []byte{}, nil)
	case wasQueued && !isQueued:
		err = b.Delete(queuedKey(before), nil)
	}
	if err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Pebble) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(job.ID); err == nil {
		return fmt.Errorf("job %s already exists", job.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.save(nil, job)
}

func (s *Pebble) Get(_ context.Context, id string) (*models.Job, error) {
	return s.load(id)
}

func (s *Pebble) Update(_ context.Context, id string, p models.Patch) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if before.Status.Terminal() {
		return before, ErrFinalized
	}
	after := *before
	p.Apply(&after)
	if err := s.save(before, &after); err != nil {
		return nil, err
	}
	return &after, nil
}

func (s *Pebble) ListQueued(_ context.Context) ([]*models.Job, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(queuedPrefix),
		UpperBound: prefixUpperBound(queuedPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		// queued/<20 digits>/<id>
		ids = append(ids, key[len(queuedPrefix)+21:])
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.load(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if j.Status == models.StatusQueued {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (s *Pebble) Claim(ctx context.Context, id string) (bool, error) {
	return s.Advance(ctx, id, models.StatusQueued, models.StatusPatch(models.StatusStarting, models.ProgressStarting))
}

func (s *Pebble) Advance(_ context.Context, id string, from models.Status, p models.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, err := s.load(id)
	if err != nil {
		return false, err
	}
	if before.Status != from {
		return false, nil
	}
	after := *before
	p.Apply(&after)
	if err := s.save(before, &after); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Pebble) Cancel(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !before.Status.Cancellable() {
		return before, nil
	}
	after := *before
	after.Status = models.StatusCancelled
	if err := s.save(before, &after); err != nil {
		return nil, err
	}
	return &after, nil
}

func (s *Pebble) Ping(_ context.Context) error {
	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("job store health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}

func (s *Pebble) Close() error {
	return s.db.Close()
}
