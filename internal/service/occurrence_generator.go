package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

const dailyTimeLayout = "15:04"

// GenerateOccurrences expands a program's recurrence rule across its validity
// window into ascending due dates stamped in loc.
func GenerateOccurrences(program *models.Program, loc *time.Location) ([]models.Occurrence, error) {
	if program == nil {
		return nil, appErrors.Configuration("program is required")
	}
	return ExpandRecurrence(program.Recurrence, program.ValidFrom, program.ValidTo, loc)
}

// ExpandRecurrence produces the occurrences of rule inside [from, to].
func ExpandRecurrence(rule models.Recurrence, from, to models.Date, loc *time.Location) ([]models.Occurrence, error) {
	if loc == nil {
		loc = time.UTC
	}
	if from.IsZero() || to.IsZero() {
		return nil, appErrors.Configuration("validity window requires both from and to dates")
	}
	if from.After(to.Time) {
		return nil, appErrors.Configuration(fmt.Sprintf("validity window starts %s after it ends %s", from, to))
	}
	if err := ValidateRecurrence(rule); err != nil {
		return nil, err
	}

	switch rule.Kind {
	case models.RecurrenceDaily:
		clock, _ := time.Parse(dailyTimeLayout, rule.Time)
		var out []models.Occurrence
		for d := from.Time; !d.After(to.Time); d = d.AddDate(0, 0, 1) {
			// Keys carry the configured wall clock even when it falls in a DST gap
			// and time.Date shifts the instant.
			key := time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC).Format(models.OccurrenceKeyTimeLayout)
			due := time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
			out = append(out, models.Occurrence{Key: key, DueAt: due, HasTime: true})
		}
		return out, nil
	case models.RecurrenceWeekly:
		weekday, _ := parseWeekday(rule.Weekday)
		start := from.Time
		for start.Weekday() != weekday {
			start = start.AddDate(0, 0, 1)
		}
		var out []models.Occurrence
		for d := start; !d.After(to.Time); d = d.AddDate(0, 0, 7) {
			out = append(out, dateOccurrence(d.Year(), d.Month(), d.Day(), loc))
		}
		return out, nil
	case models.RecurrenceMonthly:
		var out []models.Occurrence
		for y, m := from.Year(), from.Month(); y < to.Year() || (y == to.Year() && m <= to.Month()); {
			if occ, ok := anchoredOccurrence(y, m, *rule.DayOfMonth, from, to, loc); ok {
				out = append(out, occ)
			}
			m++
			if m > time.December {
				m = time.January
				y++
			}
		}
		return out, nil
	case models.RecurrenceQuarterly:
		month := time.Month((*rule.Quarter-1)*3 + 1)
		return yearlyOccurrences(month, *rule.DayOfMonth, from, to, loc), nil
	case models.RecurrenceYearly:
		return yearlyOccurrences(time.Month(*rule.Month), *rule.DayOfMonth, from, to, loc), nil
	}
	return nil, appErrors.Configuration(fmt.Sprintf("unsupported recurrence kind %q", rule.Kind))
}

// ValidateRecurrence rejects rules missing the anchor their kind requires.
// Anchors that can never fall on a real date (e.g. April 31) are rejected too.
func ValidateRecurrence(rule models.Recurrence) error {
	switch rule.Kind {
	case models.RecurrenceDaily:
		if strings.TrimSpace(rule.Time) == "" {
			return appErrors.Configuration("daily recurrence requires time")
		}
		if _, err := time.Parse(dailyTimeLayout, rule.Time); err != nil {
			return appErrors.Configuration(fmt.Sprintf("daily time %q must be HH:MM", rule.Time))
		}
	case models.RecurrenceWeekly:
		if strings.TrimSpace(rule.Weekday) == "" {
			return appErrors.Configuration("weekly recurrence requires weekday")
		}
		if _, ok := parseWeekday(rule.Weekday); !ok {
			return appErrors.Configuration(fmt.Sprintf("unknown weekday %q", rule.Weekday))
		}
	case models.RecurrenceMonthly:
		if err := requireDay(rule.DayOfMonth, 31); err != nil {
			return err
		}
	case models.RecurrenceQuarterly:
		if rule.Quarter == nil {
			return appErrors.Configuration("quarterly recurrence requires quarter")
		}
		if *rule.Quarter < 1 || *rule.Quarter > 4 {
			return appErrors.Configuration("quarter must be between 1 and 4")
		}
		month := time.Month((*rule.Quarter-1)*3 + 1)
		if err := requireDay(rule.DayOfMonth, maxDaysIn(month)); err != nil {
			return err
		}
	case models.RecurrenceYearly:
		if rule.Month == nil {
			return appErrors.Configuration("yearly recurrence requires month")
		}
		if *rule.Month < 1 || *rule.Month > 12 {
			return appErrors.Configuration("month must be between 1 and 12")
		}
		if err := requireDay(rule.DayOfMonth, maxDaysIn(time.Month(*rule.Month))); err != nil {
			return err
		}
	case "":
		return appErrors.Configuration("recurrence kind is required")
	default:
		return appErrors.Configuration(fmt.Sprintf("unsupported recurrence kind %q", rule.Kind))
	}
	return nil
}

// DaysInMonth returns the day count of month in year (day 0 of the next month).
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func maxDaysIn(month time.Month) int {
	// 2000 is a leap year so February allows the 29th.
	return DaysInMonth(2000, month)
}

func requireDay(day *int, max int) error {
	if day == nil {
		return appErrors.Configuration("recurrence requires dayOfMonth")
	}
	if *day < 1 || *day > max {
		return appErrors.Configuration(fmt.Sprintf("dayOfMonth must be between 1 and %d", max))
	}
	return nil
}

func yearlyOccurrences(month time.Month, day int, from, to models.Date, loc *time.Location) []models.Occurrence {
	var out []models.Occurrence
	for y := from.Year(); y <= to.Year(); y++ {
		if occ, ok := anchoredOccurrence(y, month, day, from, to, loc); ok {
			out = append(out, occ)
		}
	}
	return out
}

// anchoredOccurrence skips periods too short for the anchor instead of rolling over.
func anchoredOccurrence(year int, month time.Month, day int, from, to models.Date, loc *time.Location) (models.Occurrence, bool) {
	if day > DaysInMonth(year, month) {
		return models.Occurrence{}, false
	}
	date := models.NewDate(year, month, day)
	if date.Before(from.Time) || date.After(to.Time) {
		return models.Occurrence{}, false
	}
	return dateOccurrence(year, month, day, loc), true
}

func dateOccurrence(year int, month time.Month, day int, loc *time.Location) models.Occurrence {
	due := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return models.Occurrence{Key: due.Format(models.DateLayout), DueAt: due}
}

func parseWeekday(raw string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return time.Sunday, false
}

// FindOccurrence returns the occurrence with the given key.
func FindOccurrence(occurrences []models.Occurrence, key string) (models.Occurrence, bool) {
	for _, occ := range occurrences {
		if occ.Key == key {
			return occ, true
		}
	}
	return models.Occurrence{}, false
}
