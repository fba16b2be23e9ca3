package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo reports the previous and next fire times of cronExpr
// relative to refTime. The previous fire is found by probing backwards
// hour by hour, up to a year, since the cron library only computes
// forward. Accepts standard 5-field expressions, optional seconds, and
// descriptors like @daily.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)

	var prevTime time.Time
	searchStart := refTime.Add(-time.Minute)

	for i := range 366 * 24 {
		checkTime := searchStart.Add(-time.Duration(i) * time.Hour)
		candidateNext := schedule.Next(checkTime)

		if candidateNext.Before(refTime) ||
			candidateNext.Equal(refTime) {
			prevTime = candidateNext
			break
		}
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       nextTime,
		Last:       prevTime,
	}

	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}

	info.TimeUntilNext = nextTime.Sub(refTime)

	return info, nil
}

// Summary renders the trigger info for status displays, e.g.
// "next in 2h30m0s (last 21h30m0s ago)".
func (t *TriggerInfo) Summary() string {
	if t == nil {
		return ""
	}
	next := fmt.Sprintf("next in %s", t.TimeUntilNext.Round(time.Second))
	if t.Last.IsZero() {
		return next
	}
	return fmt.Sprintf("%s (last %s ago)", next,
		t.TimeSinceLast.Round(time.Second))
}
