// Package analytics keeps rolling per-day counters of scraped events in Redis.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/domain"
)

// DefaultRetention is how long a daily counter is kept.
const DefaultRetention = 30 * 24 * time.Hour

type RedisSink struct {
	client    redis.Cmdable
	retention time.Duration
	log       zerolog.Logger
}

func NewRedisSink(client redis.Cmdable, log zerolog.Logger) *RedisSink {
	return &RedisSink{client: client, retention: DefaultRetention, log: log}
}

func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	if d > 0 {
		s.retention = d
	}
	return s
}

// Record writes the counters for a completed job. Errors are logged; analytics
// never affects the job outcome.
func (s *RedisSink) Record(ctx context.Context, job domain.ScrapeJob) {
	if err := s.Write(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("analytics write failed")
	}
}

// Write increments, for the day the job finished, the provider/city event
// count, the provider/city run count and one run count per tag.
func (s *RedisSink) Write(ctx context.Context, job domain.ScrapeJob) error {
	day := dayBucket(job.FinishedAt)

	pipe := s.client.Pipeline()
	eventsKey := buildKey(job.Provider, job.City, "events", day)
	pipe.IncrBy(ctx, eventsKey, int64(len(job.Events)))
	pipe.Expire(ctx, eventsKey, s.retention)

	runsKey := buildKey(job.Provider, job.City, "runs", day)
	pipe.Incr(ctx, runsKey)
	pipe.Expire(ctx, runsKey, s.retention)

	for _, tag := range job.Tags {
		tagKey := buildKey(job.Provider, job.City, "tag:"+strings.ToLower(tag), day)
		pipe.Incr(ctx, tagKey)
		pipe.Expire(ctx, tagKey, s.retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func buildKey(provider domain.Provider, city, metric, day string) string {
	return fmt.Sprintf("w3e:%s:%s:%s:%s", provider, city, metric, day)
}

func dayBucket(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("20060102")
}
