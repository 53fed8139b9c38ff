package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/docpilot/docpilot/internal/storage"
	"github.com/docpilot/docpilot/internal/store"
)

// Scheduler runs two background jobs: failing documents stuck in
// processing, and purging soft-deleted documents together with their
// files. A redis lock keeps multiple instances from doubling up.
type Scheduler struct {
	Store       *store.Store
	Files       *storage.Storage
	Rdb         *redis.Client
	StuckAfter  time.Duration
	CleanupCron string
	Stop        chan struct{}

	lastCleanup *time.Time
	logger      *log.Logger
}

func (s *Scheduler) Start() {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "sched:lock:docpilot", "1", 50*time.Second).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "sched:lock:docpilot")
	}
	s.reapStuck(ctx)
	if isDue(s.CleanupCron, s.lastCleanup) {
		now := time.Now()
		s.lastCleanup = &now
		s.cleanup(ctx)
	}
}

// reapStuck fails documents whose extraction never reported back.
func (s *Scheduler) reapStuck(ctx context.Context) {
	stuckAfter := s.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	docs, err := s.Store.ListStuckDocuments(ctx, time.Now().Add(-stuckAfter))
	if err != nil {
		s.logger.Printf("list stuck documents: %v", err)
		return
	}
	for _, d := range docs {
		if err := s.Store.UpdateDocumentStatus(ctx, d.ID, store.DocumentStatusProcessing, store.DocumentStatusFailed); err != nil {
			continue
		}
		s.logger.Printf("document %s stuck in processing for over %s, marked failed", d.ID, stuckAfter)
		msg := fmt.Sprintf("Text extraction for %q timed out. You can retry from the dashboard.", d.OriginalName)
		if _, err := s.Store.CreateNotification(ctx, d.UserID, "Extraction timed out", msg); err != nil {
			s.logger.Printf("notify user %s: %v", d.UserID, err)
		}
	}
}

// cleanup purges soft-deleted rows and removes their files from storage.
func (s *Scheduler) cleanup(ctx context.Context) {
	paths, err := s.Store.PurgeDeletedDocuments(ctx, time.Now(), 200)
	if err != nil {
		s.logger.Printf("purge deleted documents: %v", err)
		return
	}
	for _, p := range paths {
		if err := s.Files.Remove(p); err != nil {
			s.logger.Printf("remove %s: %v", p, err)
		}
	}
	if len(paths) > 0 {
		s.logger.Printf("cleanup removed %d documents", len(paths))
	}
}

// isDue determines whether a job with cronSpec should run now given its
// last run. Supports "@daily", "@hourly" and 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// invalid spec falls back to @daily
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
