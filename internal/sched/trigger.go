package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun computes the next firing instant for a trigger relative to
// now. For an "at" trigger the value itself is the instant; for "cron"
// it is the earliest recurrence strictly after now.
func NextRun(triggerType, triggerValue string, now time.Time) (time.Time, error) {
	switch triggerType {
	case TriggerAt:
		return parseInstant(triggerValue, now.Location())
	case TriggerCron:
		schedule, err := cron.ParseStandard(triggerValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron %q: %w", triggerValue, err)
		}
		next := schedule.Next(now)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron %q has no future occurrence", triggerValue)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown trigger type %q", triggerType)
	}
}

// parseInstant accepts RFC 3339 or a bare local datetime without zone.
func parseInstant(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse instant %q: expected ISO 8601", value)
}
