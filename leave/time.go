package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOLIDAY CALENDAR - Per-country public holidays
// =============================================================================

// Holiday is a public holiday for one country. Requested spans never
// count holidays as working days.
type Holiday struct {
	Country Country
	Date    time.Time
	Name    string
}

// HolidayCalendar provides holiday lookup for working-day exclusion.
type HolidayCalendar interface {
	IsHoliday(country Country, date time.Time) bool
}

// StaticHolidayCalendar is a config-loaded calendar.
type StaticHolidayCalendar struct {
	byCountry map[Country]map[string]string // country -> yyyy-mm-dd -> name
}

func NewStaticHolidayCalendar(holidays []Holiday) *StaticHolidayCalendar {
	cal := &StaticHolidayCalendar{byCountry: make(map[Country]map[string]string)}
	for _, h := range holidays {
		if cal.byCountry[h.Country] == nil {
			cal.byCountry[h.Country] = make(map[string]string)
		}
		cal.byCountry[h.Country][h.Date.Format("2006-01-02")] = h.Name
	}
	return cal
}

func (c *StaticHolidayCalendar) IsHoliday(country Country, date time.Time) bool {
	days := c.byCountry[country]
	if days == nil {
		return false
	}
	_, ok := days[date.Format("2006-01-02")]
	return ok
}

// NoHolidays is the calendar used when no holiday data is configured.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Country, time.Time) bool { return false }

// =============================================================================
// WORKING DAY ARITHMETIC
// =============================================================================

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Day truncates t to midnight UTC. Requests are day-granular.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WorkingDays counts the working days in the closed span [from, to],
// excluding weekends and the country's public holidays.
func WorkingDays(cal HolidayCalendar, country Country, from, to time.Time) decimal.Decimal {
	if cal == nil {
		cal = NoHolidays{}
	}
	count := 0
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) || cal.IsHoliday(country, d) {
			continue
		}
		count++
	}
	return decimal.NewFromInt(int64(count))
}

// MonthsBetween returns full months elapsed from a to b.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
