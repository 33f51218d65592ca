/*
auditor.go - Background occupancy auditor

PURPOSE:
  Periodically re-checks slot occupancy against configured allotments
  and promotes eligible waitlisted requests. Normal operation promotes
  in the same transaction that frees a slot; the auditor is the safety
  net that repairs any date where capacity was raised out-of-band or a
  crash interrupted a transition.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps every configured division over the eligible booking horizon
  - Each date repair is one engine transaction; a failed date is
    logged and skipped, not retried in the same sweep

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Divisions:     Which divisions to sweep
  - Enabled:       Whether the auditor is active (default: true)

USAGE:
  auditor := NewOccupancyAuditor(engine, divisions)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - schedule/engine.go: PromoteEligible
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// OccupancyAuditor sweeps division calendars and repairs the waitlist.
type OccupancyAuditor struct {
	Engine        *schedule.Engine
	Divisions     []string
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOccupancyAuditor creates a new auditor.
func NewOccupancyAuditor(engine *schedule.Engine, divisions []string) *OccupancyAuditor {
	return &OccupancyAuditor{
		Engine:        engine,
		Divisions:     divisions,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the auditor.
func (oa *OccupancyAuditor) Start() {
	oa.mu.Lock()
	defer oa.mu.Unlock()

	if !oa.Enabled {
		log.Println("[Auditor] Disabled, not starting")
		return
	}

	oa.ticker = time.NewTicker(oa.CheckInterval)
	oa.wg.Add(1)

	go oa.run()

	log.Printf("[Auditor] Started with check interval: %v", oa.CheckInterval)
}

// Stop stops the auditor.
func (oa *OccupancyAuditor) Stop() {
	oa.mu.Lock()
	defer oa.mu.Unlock()

	if oa.ticker != nil {
		oa.ticker.Stop()
		close(oa.stop)
		oa.wg.Wait()
		log.Println("[Auditor] Stopped")
	}
}

func (oa *OccupancyAuditor) run() {
	defer oa.wg.Done()

	// Run immediately on start
	oa.sweep()

	for {
		select {
		case <-oa.ticker.C:
			oa.sweep()
		case <-oa.stop:
			return
		}
	}
}

// sweep walks the booking horizon for every configured division and
// promotes where slots and waitlisted requests coexist.
func (oa *OccupancyAuditor) sweep() {
	ctx := context.Background()
	today := dates.Today()
	horizon := today.AddMonths(dates.MaxHorizonMonths)

	log.Printf("[Auditor] Sweeping %d divisions through %s", len(oa.Divisions), horizon.Key())

	repaired := 0
	failed := 0

	for _, division := range oa.Divisions {
		month := dates.MonthOf(today)
		for !month.First().After(horizon) {
			counts, err := oa.Engine.Store.OccupiedCounts(ctx, division, month)
			if err != nil {
				log.Printf("[Auditor] Error counting occupancy for %s %s: %v", division, month, err)
				failed++
				break
			}
			maxes, err := oa.Engine.Store.MonthMax(ctx, division, month)
			if err != nil {
				log.Printf("[Auditor] Error loading allotments for %s %s: %v", division, month, err)
				failed++
				break
			}

			for key, max := range maxes {
				if counts[key] >= max {
					continue
				}
				date, err := dates.FromKey(key)
				if err != nil {
					continue
				}
				if err := oa.Engine.PromoteEligible(ctx, division, date); err != nil {
					log.Printf("[Auditor] Error promoting %s %s: %v", division, key, err)
					failed++
					continue
				}
				repaired++
			}

			month = month.Next()
		}
	}

	if repaired > 0 || failed > 0 {
		log.Printf("[Auditor] Completed: %d dates repaired, %d errors", repaired, failed)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (oa *OccupancyAuditor) RunNow() {
	oa.sweep()
}
