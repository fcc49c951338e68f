package utils

import (
	"time"
)

// JST is the Japan Standard Time location (UTC+9).
var JST *time.Location

func init() {
	var err error
	JST, err = time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		JST = time.FixedZone("JST", 9*60*60)
	}
}

// NowJST returns the current time in JST.
func NowJST() time.Time {
	return time.Now().In(JST)
}

// ToJST converts a time.Time to JST.
func ToJST(t time.Time) time.Time {
	return t.In(JST)
}

// PCF publishing window, JST wall-clock.
const (
	PCFWindowOpens  = "07:50"
	PCFWindowCloses = "23:55"
)

// PCFWindowStart returns the time PCF files start being published (07:50 JST) on the given date.
func PCFWindowStart(date time.Time) time.Time {
	d := date.In(JST)
	return time.Date(d.Year(), d.Month(), d.Day(), 7, 50, 0, 0, JST)
}

// PCFWindowEnd returns the time PCF downloads close (23:55 JST) on the given date.
func PCFWindowEnd(date time.Time) time.Time {
	d := date.In(JST)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 55, 0, 0, JST)
}

// IsPCFPublishingHours reports whether PCF providers are expected to serve files at t.
func IsPCFPublishingHours(t time.Time) bool {
	t = t.In(JST)
	if !IsBusinessDay(t) {
		return false
	}
	return !t.Before(PCFWindowStart(t)) && t.Before(PCFWindowEnd(t))
}

// IsBusinessDay checks if the given date is a TSE business day (not weekend, not holiday).
func IsBusinessDay(t time.Time) bool {
	t = t.In(JST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsTSEHoliday(t)
}

// PrevBusinessDay returns the previous TSE business day before the given date.
func PrevBusinessDay(from time.Time) time.Time {
	prev := from.In(JST).AddDate(0, 0, -1)
	for !IsBusinessDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// IsTSEHoliday checks if the given date is a Tokyo Stock Exchange holiday.
// This list should be updated annually.
func IsTSEHoliday(t time.Time) bool {
	_, ok := tseHolidays2026[t.In(JST).Format("2006-01-02")]
	return ok
}

// TSE market holidays for 2026, including the year-end closure.
var tseHolidays2026 = map[string]string{
	"2026-01-01": "元日",
	"2026-01-02": "年始休業日",
	"2026-01-12": "成人の日",
	"2026-02-11": "建国記念の日",
	"2026-02-23": "天皇誕生日",
	"2026-03-20": "春分の日",
	"2026-04-29": "昭和の日",
	"2026-05-04": "みどりの日",
	"2026-05-05": "こどもの日",
	"2026-05-06": "振替休日",
	"2026-07-20": "海の日",
	"2026-08-11": "山の日",
	"2026-09-21": "敬老の日",
	"2026-09-22": "国民の休日",
	"2026-09-23": "秋分の日",
	"2026-10-12": "スポーツの日",
	"2026-11-03": "文化の日",
	"2026-11-23": "勤労感謝の日",
	"2026-12-31": "年末休業日",
}

// ParseDateJST parses a date string in "20060102" format (the PCF date layout) in JST.
func ParseDateJST(s string) (time.Time, error) {
	return time.ParseInLocation("20060102", s, JST)
}

// FormatDateJST formats a time.Time to "2006-01-02" in JST.
func FormatDateJST(t time.Time) string {
	return t.In(JST).Format("2006-01-02")
}

// FormatDateTimeJST formats a time.Time to "2006-01-02 15:04:05 JST".
func FormatDateTimeJST(t time.Time) string {
	return t.In(JST).Format("2006-01-02 15:04:05 JST")
}

// PCFStatus describes whether PCF files should currently be downloadable.
func PCFStatus(now time.Time) string {
	now = now.In(JST)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}
	if name, ok := tseHolidays2026[now.Format("2006-01-02")]; ok {
		return "CLOSED (" + name + ")"
	}

	switch {
	case now.Before(PCFWindowStart(now)):
		return "NOT YET PUBLISHED"
	case now.Before(PCFWindowEnd(now)):
		return "PUBLISHED"
	default:
		return "CLOSED"
	}
}
