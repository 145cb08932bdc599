package challenge

import (
	"testing"
	"time"
)

func TestWeekOfStableWithinDay(t *testing.T) {
	day := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	morning := WeekOf(day.Add(8 * time.Hour))
	night := WeekOf(day.Add(23 * time.Hour))
	if morning != night {
		t.Fatalf("same day mapped to different weeks: %d vs %d", morning, night)
	}
}

func TestWeekOfAdvances(t *testing.T) {
	start := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	prev := WeekOf(start)
	changes := 0
	for d := 1; d <= 364; d++ {
		w := WeekOf(start.AddDate(0, 0, d))
		if w < prev {
			t.Fatalf("week identifier went backwards at day %d: %d -> %d", d, prev, w)
		}
		if w != prev {
			changes++
			prev = w
		}
	}
	// Roughly one change per week over a year.
	if changes < 50 || changes > 54 {
		t.Fatalf("expected ~52 week rollovers, got %d", changes)
	}
}

func TestWeekOfDistinctAcrossYears(t *testing.T) {
	a := WeekOf(time.Date(2025, time.December, 31, 12, 0, 0, 0, time.UTC))
	b := WeekOf(time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC))
	if a >= b {
		t.Fatalf("expected new year week to be greater: %d vs %d", a, b)
	}
}
