package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// ScheduleType is the high-level cadence an admin picks for a digest
type ScheduleType string

const (
	ScheduleHourly      ScheduleType = "hourly"
	ScheduleEvery6Hours ScheduleType = "every_6_hours"
	ScheduleEveryNHours ScheduleType = "every_n_hours"
	ScheduleDaily       ScheduleType = "daily"
	ScheduleWeekly      ScheduleType = "weekly"
	ScheduleMonthly     ScheduleType = "monthly"
	ScheduleCustom      ScheduleType = "custom"
)

// DefaultCronExpression is used when a schedule cannot be mapped (daily at 09:00 UTC)
const DefaultCronExpression = "0 9 * * *"

const (
	defaultHour   = 9
	defaultMinute = 0
)

// Schedule describes when a digest runs. Timezone is presentational only,
// timers always run in UTC.
type Schedule struct {
	Type        ScheduleType `json:"type"`
	Hours       int          `json:"hours,omitempty"`       // every_n_hours
	DailyTime   string       `json:"dailyTime,omitempty"`   // "HH:MM"
	WeekDays    []int        `json:"weekDays,omitempty"`    // 0 = Sunday
	WeeklyTime  string       `json:"weeklyTime,omitempty"`  // "HH:MM"
	MonthDay    int          `json:"monthDay,omitempty"`    // 1-31
	MonthlyTime string       `json:"monthlyTime,omitempty"` // "HH:MM"
	Custom      string       `json:"cronExpression,omitempty"`
	Timezone    string       `json:"timezone,omitempty"`
}

// CronExpression maps the schedule to a standard five-field cron expression.
// Malformed input never fails: it falls back to sane defaults.
func (s Schedule) CronExpression() string {
	switch s.Type {
	case ScheduleHourly:
		return "0 * * * *"
	case ScheduleEvery6Hours:
		return "0 */6 * * *"
	case ScheduleEveryNHours:
		if s.Hours < 1 || s.Hours > 23 {
			return DefaultCronExpression
		}
		return fmt.Sprintf("0 */%d * * *", s.Hours)
	case ScheduleDaily:
		hour, minute := parseClock(s.DailyTime)
		return fmt.Sprintf("%d %d * * *", minute, hour)
	case ScheduleWeekly:
		hour, minute := parseClock(s.WeeklyTime)
		return fmt.Sprintf("%d %d * * %s", minute, hour, weekDayList(s.WeekDays))
	case ScheduleMonthly:
		hour, minute := parseClock(s.MonthlyTime)
		day := s.MonthDay
		if day < 1 || day > 31 {
			day = 1
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, day)
	case ScheduleCustom:
		if strings.TrimSpace(s.Custom) == "" {
			return DefaultCronExpression
		}
		return s.Custom
	}
	return DefaultCronExpression
}

// parseClock parses "HH:MM", defaulting to 09:00 on malformed input
func parseClock(value string) (int, int) {
	hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return defaultHour, defaultMinute
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return defaultHour, defaultMinute
	}
	minute, err := strconv.Atoi(minuteStr)
	if err != nil || minute < 0 || minute > 59 {
		return defaultHour, defaultMinute
	}
	return hour, minute
}

// weekDayList renders the day-of-week field, Monday when no valid day is set
func weekDayList(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			continue
		}
		parts = append(parts, strconv.Itoa(d))
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, ",")
}
