package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"transmute/models"
)

func newJob(created time.Time) *models.Job {
	return &models.Job{
		ID:        uuid.NewString(),
		Filename:  "a.png",
		Action:    models.ActionCompress,
		Target:    70,
		InputPath: "key_a.png",
		Status:    models.StatusQueued,
		CreatedAt: created.UTC().Truncate(time.Microsecond),
	}
}

// stores returns every implementation available in this environment.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}

	p, err := OpenPebble(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Failed to open pebble store: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	out["pebble"] = p

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := OpenPostgres(context.Background(), url)
		if err != nil {
			t.Fatalf("Failed to open postgres store: %v", err)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := pg.db.Exec(`DELETE FROM jobs`); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestListQueuedIsFIFO(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			var want []string
			for i := 0; i < 3; i++ {
				j := newJob(base.Add(time.Duration(3-i) * time.Second))
				want = append([]string{j.ID}, want...)
				if err := s.Create(ctx, j); err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.ListQueued(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 {
				t.Fatalf("Expected 3 queued jobs, got %d", len(got))
			}
			for i := range want {
				if got[i].ID != want[i] {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
				}
			}

			if ok, err := s.Claim(ctx, want[0]); err != nil || !ok {
				t.Fatalf("Claim failed: %v %v", ok, err)
			}
			got, _ = s.ListQueued(ctx)
			if len(got) != 2 {
				t.Errorf("Claimed job should leave the queue, %d remain", len(got))
			}
		})
	}
}

func TestClaimIsExclusive(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := newJob(time.Now())
			if err := s.Create(ctx, j); err != nil {
				t.Fatal(err)
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := s.Claim(ctx, j.ID); err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Errorf("Expected exactly one winning claim, got %d", wins.Load())
			}

			got, _ := s.Get(ctx, j.ID)
			if got.Status != models.StatusStarting || got.Progress != models.ProgressStarting {
				t.Errorf("Claimed job should be Starting/5, got %s/%d", got.Status, got.Progress)
			}
		})
	}
}

func TestCancelWindow(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			queued := newJob(time.Now())
			s.Create(ctx, queued)
			j, err := s.Cancel(ctx, queued.ID)
			if err != nil || j.Status != models.StatusCancelled {
				t.Fatalf("Queued job should cancel, got %v %v", j, err)
			}
			if ok, _ := s.Claim(ctx, queued.ID); ok {
				t.Error("Cancelled job must not be claimable")
			}

			started := newJob(time.Now())
			s.Create(ctx, started)
			s.Claim(ctx, started.ID)
			if j, _ := s.Cancel(ctx, started.ID); j.Status != models.StatusCancelled {
				t.Errorf("Starting job should cancel, got %s", j.Status)
			}
			// The worker's post-checkpoint swap now loses.
			ok, err := s.Advance(ctx, started.ID, models.StatusStarting,
				models.StatusPatch(models.StatusConverting, models.ProgressWorking))
			if err != nil || ok {
				t.Errorf("Advance after cancel should fail, got %v %v", ok, err)
			}

			running := newJob(time.Now())
			s.Create(ctx, running)
			s.Claim(ctx, running.ID)
			s.Advance(ctx, running.ID, models.StatusStarting, models.StatusPatch(models.StatusCompressing, models.ProgressWorking))
			if j, _ := s.Cancel(ctx, running.ID); j.Status != models.StatusCompressing {
				t.Errorf("Running job must not cancel, got %s", j.Status)
			}

			if _, err := s.Cancel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := newJob(time.Now())
			s.Create(ctx, j)
			s.Claim(ctx, j.ID)

			done, err := s.Update(ctx, j.ID, models.DonePatch(j.ID+".png"))
			if err != nil {
				t.Fatal(err)
			}
			if done.Status != models.StatusDone || done.OutputPath != j.ID+".png" || done.Progress != 100 {
				t.Errorf("unexpected done record: %+v", done)
			}

			for _, st := range []models.Status{models.StatusError, models.StatusQueued, models.StatusCancelled} {
				if _, err := s.Update(ctx, j.ID, models.StatusPatch(st, 0)); !errors.Is(err, ErrFinalized) {
					t.Errorf("Update to %s: expected ErrFinalized, got %v", st, err)
				}
			}
			got, _ := s.Get(ctx, j.ID)
			if got.Status != models.StatusDone {
				t.Errorf("Terminal record changed to %s", got.Status)
			}

			if _, err := s.Update(ctx, "missing", models.StatusPatch(models.StatusError, 0)); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPebbleRejectsDuplicateIDs(t *testing.T) {
	s, err := OpenPebble(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	j := newJob(time.Now())
	if err := s.Create(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(context.Background(), j); err == nil {
		t.Error("Duplicate create should fail")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
