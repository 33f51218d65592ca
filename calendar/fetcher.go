/*
fetcher.go - Engine-backed Fetcher

PURPOSE:
  Adapts the scheduling engine's read operations to the Fetcher
  interface, for deployments where the calendar store runs in the same
  process as the engine.
*/
package calendar

import (
	"context"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// EngineFetcher reads directly from a schedule.Engine.
type EngineFetcher struct {
	Engine *schedule.Engine
}

func (f *EngineFetcher) FetchMonth(ctx context.Context, division string, month dates.Month) (map[string]*schedule.DayAllotment, error) {
	return f.Engine.MonthFor(ctx, division, month)
}

func (f *EngineFetcher) FetchDate(ctx context.Context, division string, date dates.Date) (*schedule.DayAllotment, error) {
	return f.Engine.DayFor(ctx, division, date)
}

var _ Fetcher = (*EngineFetcher)(nil)
