// Package ledger records each conversion request's lifecycle in Redis so the
// status endpoint and CLI can observe progress. Writes are best-effort: a
// ledger outage never fails a conversion.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/renderq/renderq/pkg/domain"
)

// ErrNotFound indicates no record exists for the request id.
var ErrNotFound = errors.New("request not found")

type Ledger interface {
	Save(ctx context.Context, rec domain.RequestRecord) error
	Get(ctx context.Context, requestID string) (*domain.RequestRecord, error)
}

type redisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) Ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisLedger{rdb: rdb, ttl: ttl}
}

func (l *redisLedger) key(id string) string {
	return fmt.Sprintf("renderq:req:%s", id)
}

func (l *redisLedger) Save(ctx context.Context, rec domain.RequestRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := l.rdb.Set(ctx, l.key(rec.RequestID), string(b), l.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET request: %w", err)
	}
	return nil
}

func (l *redisLedger) Get(ctx context.Context, requestID string) (*domain.RequestRecord, error) {
	js, err := l.rdb.Get(ctx, l.key(requestID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET request: %w", err)
	}
	if js == "" {
		return nil, ErrNotFound
	}
	var rec domain.RequestRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}
