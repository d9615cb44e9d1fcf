// Package timerules holds the pure time calculations behind booking and
// cancellation.
package timerules

import "time"

// CancelWindow is how long before an appointment cancelling stays open.
const CancelWindow = 2 * time.Hour

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StartOfHour truncates t to the top of its hour in t's own location.
func StartOfHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// IsPast reports whether t is before now.
func IsPast(t, now time.Time) bool {
	return t.Before(now)
}

// Bookable reports whether a slot starting at hourStart may still be booked:
// it must begin strictly after now.
func Bookable(hourStart, now time.Time) bool {
	return hourStart.After(now)
}

func CancellationDeadline(date time.Time) time.Time {
	return date.Add(-CancelWindow)
}

// Cancelable reports whether now is at or before the cancellation deadline.
func Cancelable(date, now time.Time) bool {
	return !now.After(CancellationDeadline(date))
}
