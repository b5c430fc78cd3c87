// Package cache mirrors job status and progress into Redis so pollers of
// finished jobs do not hit the job store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"transmute/models"
)

// Entry is the mirrored subset of a job record.
type Entry struct {
	Status     models.Status
	Progress   int
	OutputPath string
}

// Mirror is a best-effort copy of job state. The job store stays the
// source of truth; a miss means "ask the store".
type Mirror interface {
	Put(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Nop is used when no Redis address is configured.
type Nop struct{}

func (Nop) Put(context.Context, *models.Job) error      { return nil }
func (Nop) Get(context.Context, string) (*Entry, error) { return nil, nil }
func (Nop) Ping(context.Context) error                  { return nil }
func (Nop) Close() error                                { return nil }

const DefaultTTL = 24 * time.Hour

// maxPutRetries bounds optimistic-lock retries when writers race on a key.
const maxPutRetries = 3

type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, prefix: prefix, ttl: DefaultTTL}, nil
}

// Open returns a Redis mirror when addr is set, else Nop.
func Open(ctx context.Context, addr, password string, db int, prefix string) (Mirror, error) {
	if addr == "" {
		return Nop{}, nil
	}
	return NewRedis(ctx, addr, password, db, prefix)
}

func (r *Redis) jobKey(id string) string {
	return r.prefix + "job:" + id
}

// Put writes job into the mirror unless that would move it backwards:
// a terminal entry is never overwritten and progress never decreases
// short of a terminal status.
func (r *Redis) Put(ctx context.Context, job *models.Job) error {
	key := r.jobKey(job.ID)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HMGet(ctx, key, "status", "progress").Result()
		if err != nil {
			return err
		}
		if s, ok := cur[0].(string); ok {
			if models.Status(s).Terminal() {
				return nil
			}
			if p, ok := cur[1].(string); ok && !job.Status.Terminal() {
				if prev, _ := strconv.Atoi(p); job.Progress < prev {
					return nil
				}
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"status":      string(job.Status),
				"progress":    job.Progress,
				"output_path": job.OutputPath,
				"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
			})
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxPutRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("mirror %s: %w", job.ID, redis.TxFailedErr)
}

func (r *Redis) Get(ctx context.Context, id string) (*Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	progress, _ := strconv.Atoi(fields["progress"])
	return &Entry{
		Status:     models.Status(fields["status"]),
		Progress:   progress,
		OutputPath: fields["output_path"],
	}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
