package timerules

import (
	"testing"
	"time"
)

func TestStartOfHour(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2026, 3, 5, 10, 47, 13, 999, loc)
	got := StartOfHour(in)
	want := time.Date(2026, 3, 5, 10, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if got.Location() != loc {
		t.Fatal("location must be preserved")
	}
}

func TestBookable(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	if Bookable(StartOfHour(now), now) {
		t.Fatal("the current hour has already started")
	}
	if !Bookable(StartOfHour(now.Add(time.Hour)), now) {
		t.Fatal("the next hour must be bookable")
	}
	exact := time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC)
	if Bookable(exact, exact) {
		t.Fatal("a slot starting exactly now is not in the future")
	}
}

func TestCancelable_Boundaries(t *testing.T) {
	date := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"three hours before", date.Add(-3 * time.Hour), true},
		{"exactly two hours before", date.Add(-2 * time.Hour), true},
		{"one minute before the deadline", date.Add(-2*time.Hour - time.Minute), true},
		{"one hour fifty nine before", date.Add(-time.Hour - 59*time.Minute), false},
		{"after the appointment", date.Add(time.Hour), false},
	}
	for _, tc := range cases {
		if got := Cancelable(date, tc.now); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsPast(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	if !IsPast(now.Add(-time.Second), now) || IsPast(now, now) {
		t.Fatal("IsPast must be strict")
	}
}
