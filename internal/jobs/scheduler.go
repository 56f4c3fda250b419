package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tastemap/api/internal/events"
	"tastemap/api/internal/hub"
)

const digestStream = "moderation:digest"

type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Scheduler re-broadcasts the pending count hourly, which heals any admin
// client whose view drifted (missed event, long GC pause, flaky network), and
// enqueues a daily digest entry for downstream consumers.
type Scheduler struct {
	cron    *cron.Cron
	queue   *redis.Client
	notify  *hub.Hub
	pending PendingCounter
	log     zerolog.Logger
}

func NewScheduler(queue *redis.Client, notify *hub.Hub, pending PendingCounter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		queue:   queue,
		notify:  notify,
		pending: pending,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 * * * *", s.rebroadcastPendingCount); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 8 * * *", s.enqueueDigest); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for in-flight jobs, but not forever.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) rebroadcastPendingCount() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.notify.MemberCount(hub.AdminRoom) == 0 {
		return
	}

	count, err := s.pending.PendingCount(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled pending count failed")
		return
	}
	s.notify.Publish(hub.AdminRoom, events.PendingCount(count))
}

func (s *Scheduler) enqueueDigest() {
	if s.queue == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := s.pending.PendingCount(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("digest pending count failed")
		return
	}

	if _, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: digestStream,
		Values: map[string]any{
			"type":    "moderation_digest",
			"pending": count,
		},
	}).Result(); err != nil {
		s.log.Error().Err(err).Msg("enqueue digest failed")
	}
}
