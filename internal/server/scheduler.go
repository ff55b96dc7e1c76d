package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/atom-ai-labs/cataloger/internal/catalog"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
)

// Scheduler periodically re-syncs the dealer feed into its fixed table. When
// Rdb is set, a short-lived lock keeps replicas from syncing concurrently.
type Scheduler struct {
	Autoland *catalog.AutolandClient
	Writer   *warehouse.Writer
	Rdb      *redis.Client
	Cron     string
	Project  string
	Dataset  string
	Stop     chan struct{}
	Logger   *log.Logger

	lastRun time.Time
}

func (s *Scheduler) Start() {
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
	if !s.due() {
		return
	}
	ctx := context.Background()

	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "sync:lock:autoland", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "sync:lock:autoland")
	}

	s.lastRun = time.Now()
	records, err := s.Autoland.FetchVehicles(ctx)
	if err != nil {
		s.Logger.Printf("autoland fetch failed: %v", err)
		return
	}
	ref, err := s.Writer.Save(ctx, records, s.Project, s.Dataset, catalog.AutolandTable)
	if err != nil {
		s.Logger.Printf("autoland save failed: %v", err)
		return
	}
	s.Logger.Printf("synced %d vehicles into %s", len(records), ref.FQN())
}

// due evaluates the cron expression against the last sync time. An empty or
// invalid expression falls back to daily.
func (s *Scheduler) due() bool {
	now := time.Now()
	if s.lastRun.IsZero() {
		return true
	}
	expr, err := cronexpr.Parse(s.Cron)
	if err != nil {
		return now.Sub(s.lastRun) >= 24*time.Hour
	}
	return !expr.Next(s.lastRun).After(now)
}
