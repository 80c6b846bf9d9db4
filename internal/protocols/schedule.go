package protocols

import (
	"fmt"
	"strings"
	"time"
)

var weekdayIndex = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

var weekdayToken = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// firingWindowMinutes is the width of the weekly at-or-after window. It is
// sized to tolerate a driver ticking as coarsely as once every few minutes.
const firingWindowMinutes = 10

// ClampInterval bounds an interval schedule to [10 minutes, 31 days].
// An unset interval (zero) falls back to the hourly default.
func ClampInterval(minutes int) int {
	if minutes == 0 {
		return DefaultIntervalMinutes
	}
	if minutes < MinIntervalMinutes {
		return MinIntervalMinutes
	}
	if minutes > MaxIntervalMinutes {
		return MaxIntervalMinutes
	}
	return minutes
}

func normalizeWeekday(value string) string {
	day := strings.TrimSpace(strings.ToLower(value))
	if _, ok := weekdayIndex[day]; ok {
		return day
	}
	return "thu"
}

func normalizeTimeOfDay(value string) string {
	timePart := strings.TrimSpace(value)
	if timePart == "" {
		return "12:01"
	}
	parsed, err := time.Parse("15:04", timePart)
	if err != nil {
		return "12:01"
	}
	return parsed.Format("15:04")
}

func normalizeTimezone(value string) string {
	tz := strings.TrimSpace(value)
	if tz == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "UTC"
	}
	return tz
}

type localClock struct {
	weekday     string
	date        string // YYYY-MM-DD in the schedule's zone
	minuteOfDay int
}

func localize(now time.Time, timezone string) localClock {
	loc, err := time.LoadLocation(normalizeTimezone(timezone))
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return localClock{
		weekday:     weekdayToken[local.Weekday()],
		date:        local.Format("2006-01-02"),
		minuteOfDay: local.Hour()*60 + local.Minute(),
	}
}

func targetMinuteOfDay(timeOfDay string) int {
	parsed, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return 12*60 + 1
	}
	return parsed.Hour()*60 + parsed.Minute()
}

// weeklySlot identifies one calendar occurrence of a weekly schedule. Two
// ticks inside the same firing window derive the same slot key.
func weeklySlot(clock localClock, weekday string, timeOfDay string, timezone string) string {
	return fmt.Sprintf("%s_%s_%s_%s", clock.date, weekday, timeOfDay, timezone)
}
