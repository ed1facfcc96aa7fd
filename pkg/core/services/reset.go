package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

// ResetSchedule computes daily reset instants from a time of day
type ResetSchedule struct {
	clock time.Duration
	loc   *time.Location
}

// NewResetSchedule creates a schedule firing every day at clock (offset from midnight) in loc
func NewResetSchedule(clock time.Duration, loc *time.Location) (*ResetSchedule, error) {
	if clock < 0 || clock >= 24*time.Hour {
		return nil, fmt.Errorf("reset time out of range: %s", clock)
	}
	if loc == nil {
		loc = time.Local
	}
	return &ResetSchedule{clock: clock, loc: loc}, nil
}

// Next returns the first reset instant strictly after the given time
func (s *ResetSchedule) Next(after time.Time) time.Time {
	local := after.In(s.loc)
	dtstart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, -1)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Dtstart:  dtstart,
		Byhour:   []int{int(s.clock / time.Hour)},
		Byminute: []int{int(s.clock % time.Hour / time.Minute)},
		Bysecond: []int{int(s.clock % time.Minute / time.Second)},
	})
	if err != nil {
		// Unreachable for validated clocks; fall back to plain day arithmetic
		return dtstart.AddDate(0, 0, 2).Add(s.clock)
	}
	return rule.After(local, false)
}

// RunDailyReset resets the ledger at every scheduled instant until ctx is cancelled
func (e *Engine) RunDailyReset(ctx context.Context, sched *ResetSchedule) error {
	for {
		next := sched.Next(e.now())
		e.logger.Info("Next ledger reset scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(e.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			e.ResetAll(ctx)
		}
	}
}
