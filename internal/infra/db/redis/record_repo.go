// Package redis keeps analysis records as JSON values keyed by
// "<prefix>:<id>". The default backend: records are small, lookups are by
// id only, and no relational queries exist.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/domain/analysis"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, defaults to "analysis"
	TTL      time.Duration // 0 keeps records forever
}

type RecordRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRecordRepository(opts Options) *RecordRepository {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "analysis"
	}
	return &RecordRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (r *RecordRepository) key(id analysis.ID) string {
	return r.prefix + ":" + string(id)
}

// Save upserts the record. A terminal record is never regressed to
// in_progress: the stale write is dropped, not errored, because late
// progress writes from an already-finished pipeline are expected.
func (r *RecordRepository) Save(ctx context.Context, rec *analysis.Record) error {
	existing, err := r.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, analysis.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Status.Terminal() && !rec.Status.Terminal() {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal record",
			goerr.V("id", rec.ID), goerr.T(analysis.TagPersistence))
	}
	if err := r.client.Set(ctx, r.key(rec.ID), data, r.ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to write record",
			goerr.V("id", rec.ID), goerr.T(analysis.TagPersistence))
	}
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, id analysis.ID) (*analysis.Record, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read record",
			goerr.V("id", id), goerr.T(analysis.TagPersistence))
	}
	var rec analysis.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal record",
			goerr.V("id", id), goerr.T(analysis.TagPersistence))
	}
	return &rec, nil
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, id analysis.ID, status analysis.Status) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() && !status.Terminal() {
		return nil
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal record", goerr.T(analysis.TagPersistence))
	}
	return r.client.Set(ctx, r.key(id), data, r.ttl).Err()
}

func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RecordRepository) Close() error {
	return r.client.Close()
}
