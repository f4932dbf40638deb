/*
scheduler.go - Automated stale-batch reaper

PURPOSE:
  A crash mid-distribution leaves a batch audit record stuck in
  processing. This scheduler periodically fails records older than a
  grace period, so callers can safely retry with the same batch ID.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Only records in processing older than the grace period are touched
  - FinalizeBatch's status guard makes the sweep safe against races
    with live distributions

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 5 minutes)
  - Grace:         How long processing may live (default: 10 minutes)
  - Enabled:       Whether the reaper is active (default: true)

USAGE:
  reaper := NewStaleBatchReaper(handler)
  reaper.Start()
  // ... later
  reaper.Stop()

SEE ALSO:
  - handlers.go: ReapStale endpoint (manual sweep)
  - referral/audit.go: AuditLog.ReapStale
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// StaleBatchReaper periodically fails orphaned processing batches.
type StaleBatchReaper struct {
	Handler       *Handler
	CheckInterval time.Duration
	Grace         time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStaleBatchReaper creates a reaper with default intervals.
func NewStaleBatchReaper(handler *Handler) *StaleBatchReaper {
	return &StaleBatchReaper{
		Handler:       handler,
		CheckInterval: 5 * time.Minute,
		Grace:         10 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the reaper.
func (sr *StaleBatchReaper) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if !sr.Enabled {
		log.Println("[Reaper] Disabled, not starting")
		return
	}

	sr.ticker = time.NewTicker(sr.CheckInterval)
	sr.wg.Add(1)

	go sr.run()

	log.Printf("[Reaper] Started with check interval: %v, grace: %v", sr.CheckInterval, sr.Grace)
}

// Stop stops the reaper.
func (sr *StaleBatchReaper) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.ticker != nil {
		sr.ticker.Stop()
		close(sr.stop)
		sr.wg.Wait()
		log.Println("[Reaper] Stopped")
	}
}

func (sr *StaleBatchReaper) run() {
	defer sr.wg.Done()

	for {
		select {
		case <-sr.ticker.C:
			sr.sweep()
		case <-sr.stop:
			return
		}
	}
}

func (sr *StaleBatchReaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reaped, err := sr.Handler.Engine.Audit().ReapStale(ctx, sr.Grace)
	if err != nil {
		log.Printf("[Reaper] Sweep failed: %v", err)
		return
	}
	if reaped > 0 {
		log.Printf("[Reaper] Failed %d stale batch(es)", reaped)
	}
}
