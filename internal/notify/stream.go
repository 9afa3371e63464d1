// Package notify carries advisory "a job was submitted" signals over a redis
// stream. Postgres is the source of truth; the stream only shortens the idle
// poll. Every failure here degrades to polling, never to lost jobs.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/faultline-io/faultline/internal/logger"
)

const maxStreamLen = 4096

type Stream struct {
	rdb *redis.Client
	key string

	// lastID tracks the newest entry this consumer observed. Guarded
	// because a worker may run several loops over one stream.
	mu     sync.Mutex
	lastID string

	log *logger.Logger
}

func NewStream(url, key string, log *logger.Logger) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Stream{rdb: redis.NewClient(opts), key: key, lastID: "$", log: log}, nil
}

func (s *Stream) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Publish announces a freshly queued job. Errors are logged and swallowed;
// the job is already durable in the store.
func (s *Stream) Publish(ctx context.Context, jobID uuid.UUID) {
	if s == nil {
		return
	}
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{"job_id": jobID.String()},
	}).Err()
	if err != nil {
		s.log.Warnw("notify_publish_failed", "job_id", jobID.String(), "error", err.Error())
	}
}

// Wait blocks up to timeout for a new submission signal. It returns early
// when one arrives; on any other error it sleeps for the full timeout so the
// caller's poll cadence is preserved.
func (s *Stream) Wait(ctx context.Context, timeout time.Duration) {
	if s == nil {
		waitFallback(ctx, timeout)
		return
	}

	s.mu.Lock()
	lastID := s.lastID
	s.mu.Unlock()

	res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.key, lastID},
		Count:   1,
		Block:   timeout,
	}).Result()
	if err != nil {
		// redis.Nil is a plain timeout.
		if err != redis.Nil && ctx.Err() == nil {
			s.log.Debugw("notify_wait_failed", "error", err.Error())
			waitFallback(ctx, timeout)
		}
		return
	}

	s.mu.Lock()
	for _, stream := range res {
		for _, msg := range stream.Messages {
			s.lastID = msg.ID
		}
	}
	s.mu.Unlock()
}

func waitFallback(ctx context.Context, timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
