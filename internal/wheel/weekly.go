package wheel

import (
	"time"
)

// Weekly return thresholds, in percent of portfolio value.
const (
	weeklyTarget    = 1.0
	weeklyWarnBelow = 1.0
	weeklyViolation = 0.5
)

// CalculateWeekly reports the current Monday-to-Sunday window: premiums from
// option positions opened this week plus stock P&L realized this week.
func CalculateWeekly(optionPositions []OptionPosition, stockPositions []StockPosition, portfolioValue float64, now time.Time) WeeklyPerformance {
	weekStart := weekStartOf(now)
	weekEnd := weekEndOf(weekStart)

	daysRemaining := int(weekEnd.Sub(now).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	weeklyPL := 0.0

	for _, pos := range optionPositions {
		if pos.OpenDate == "" {
			continue
		}
		openDate, err := time.Parse(dateLayout, pos.OpenDate)
		if err != nil {
			continue
		}
		if inWindow(openDate, weekStart, weekEnd) {
			weeklyPL += pos.PremiumCollected
		}
	}

	for _, pos := range stockPositions {
		if pos.Type != "closed" {
			continue
		}
		closeDate, err := time.Parse(dateLayout, pos.CloseDate)
		if err != nil {
			continue
		}
		if inWindow(closeDate, weekStart, weekEnd) {
			weeklyPL += pos.RealizedPnL
		}
	}

	weeklyReturn := 0.0
	if portfolioValue > 0 {
		weeklyReturn = (weeklyPL / portfolioValue) * 100
	}

	status := "compliant"
	if weeklyReturn < weeklyViolation {
		status = "violation"
	} else if weeklyReturn < weeklyWarnBelow {
		status = "warning"
	}

	return WeeklyPerformance{
		WeekStartDate:       weekStart.Format(dateLayout),
		WeeklyPL:            weeklyPL,
		WeeklyReturnPercent: weeklyReturn,
		DaysRemainingInWeek: daysRemaining,
		Status:              status,
		TargetWeeklyReturn:  weeklyTarget,
	}
}

// weekStartOf returns the most recent Monday at 00:00.
func weekStartOf(t time.Time) time.Time {
	weekday := int(t.Weekday())
	daysSinceMonday := (weekday + 6) % 7
	start := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
}

// weekEndOf returns the Sunday at 23:59:59 for the given week start.
func weekEndOf(weekStart time.Time) time.Time {
	end := weekStart.AddDate(0, 0, 6)
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
}

func inWindow(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
