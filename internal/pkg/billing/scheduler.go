package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nutricoachhq/NutriCoach/internal/pkg/cache"
	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
)

const (
	sweepLockKey       = "billing:full_sync:lock"
	lastSweepResultKey = "billing:full_sync:last"
)

// Scheduler runs periodic full syncs in the background. The Redis lock
// keeps concurrently deployed instances (or a manual trigger) from running
// interleaved sweeps; webhook processing is never blocked by it.
type Scheduler struct {
	sweeper *Sweeper
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler around the sweeper.
func NewScheduler(sweeper *Sweeper) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. Interval comes from
// BILLING_SYNC_INTERVAL_HOURS, zero disables scheduling entirely.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	hours, _ := strconv.Atoi(env.GetEnv("BILLING_SYNC_INTERVAL_HOURS", "24"))
	if hours <= 0 {
		log.Info("[Billing Scheduler] periodic full sync disabled")
		return
	}

	// Recreate stop channel for each start cycle so the scheduler can be
	// restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(time.Duration(hours) * time.Hour)

	log.Infof("[Billing Scheduler] full sync every %dh", hours)
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[Billing Scheduler] stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	summary, err := RunLockedFullSync(context.Background(), s.sweeper)
	if err != nil {
		log.Errorf("[Billing Scheduler] full sync failed: %v", err)
		return
	}
	if summary == nil {
		log.Info("[Billing Scheduler] full sync skipped, another run holds the lock")
	}
}

// RunLockedFullSync executes one sweep under the shared Redis lock. Returns
// (nil, nil) when another run holds the lock. The manual trigger endpoint
// uses the same entry point as the scheduler.
func RunLockedFullSync(ctx context.Context, sweeper *Sweeper) (*SyncSummary, error) {
	acquired, err := cache.AcquireLock(sweepLockKey, 30*time.Minute)
	if err != nil {
		// Cache down should not stop a repair pass; log and run anyway.
		log.Warnf("[Billing] sweep lock unavailable, continuing without: %v", err)
	} else if !acquired {
		return nil, nil
	} else {
		defer func() {
			if err := cache.ReleaseLock(sweepLockKey); err != nil {
				log.Warnf("[Billing] sweep lock release failed: %v", err)
			}
		}()
	}

	summary, err := sweeper.RunFullSync(ctx)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(summary); jerr == nil {
		if cerr := cache.Set(lastSweepResultKey, string(data), 0); cerr != nil {
			log.Warnf("[Billing] could not store sweep summary: %v", cerr)
		}
	}
	return summary, nil
}

// LastFullSyncSummary returns the cached JSON summary of the most recent
// sweep, whichever path ran it.
func LastFullSyncSummary() (string, error) {
	return cache.Get(lastSweepResultKey)
}
