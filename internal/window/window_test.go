package window

import (
	"testing"
	"time"

	"github.com/julianstephens/nudge/internal/models"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func assertTimes(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGenerateOccurrencesMonthlyClamp(t *testing.T) {
	start := date(2024, time.January, 31, 9, 0)
	// The Jan 31 occurrence is firing right now, so it is not pending.
	got := GenerateOccurrences(start, models.CadenceMonthly, 3, 9, 0, start)

	assertTimes(t, got, []time.Time{
		date(2024, time.February, 29, 9, 0),
		date(2024, time.March, 31, 9, 0),
		date(2024, time.April, 30, 9, 0),
	})
}

func TestGenerateOccurrencesYearlyLeapDay(t *testing.T) {
	start := date(2024, time.February, 29, 8, 0)
	got := GenerateOccurrences(start, models.CadenceYearly, 3, 8, 0, start)

	assertTimes(t, got, []time.Time{
		date(2025, time.February, 28, 8, 0),
		date(2026, time.February, 28, 8, 0),
		date(2027, time.February, 28, 8, 0),
	})
}

func TestGenerateOccurrencesDaily(t *testing.T) {
	now := date(2024, time.March, 1, 10, 0)

	t.Run("normalized start already passed", func(t *testing.T) {
		got := GenerateOccurrences(date(2024, time.March, 1, 0, 0), models.CadenceDaily, 3, 9, 0, now)
		assertTimes(t, got, []time.Time{
			date(2024, time.March, 2, 9, 0),
			date(2024, time.March, 3, 9, 0),
			date(2024, time.March, 4, 9, 0),
		})
	})

	t.Run("normalized start later today", func(t *testing.T) {
		got := GenerateOccurrences(date(2024, time.March, 1, 0, 0), models.CadenceDaily, 2, 18, 30, now)
		assertTimes(t, got, []time.Time{
			date(2024, time.March, 1, 18, 30),
			date(2024, time.March, 2, 18, 30),
		})
	})

	t.Run("within one minute is not future", func(t *testing.T) {
		got := GenerateOccurrences(date(2024, time.March, 1, 0, 0), models.CadenceDaily, 1, 10, 1, now)
		assertTimes(t, got, []time.Time{date(2024, time.March, 2, 10, 1)})
	})

	t.Run("start far in the past skips forward", func(t *testing.T) {
		got := GenerateOccurrences(date(2020, time.January, 1, 0, 0), models.CadenceDaily, 1, 9, 0, now)
		assertTimes(t, got, []time.Time{date(2024, time.March, 2, 9, 0)})
	})
}

func TestGenerateOccurrencesWeekly(t *testing.T) {
	now := date(2024, time.March, 1, 10, 0) // Friday
	got := GenerateOccurrences(date(2024, time.March, 4, 0, 0), models.CadenceWeekly, 3, 7, 0, now)
	assertTimes(t, got, []time.Time{
		date(2024, time.March, 4, 7, 0),
		date(2024, time.March, 11, 7, 0),
		date(2024, time.March, 18, 7, 0),
	})
}

func TestGenerateOccurrencesNone(t *testing.T) {
	now := date(2024, time.March, 1, 10, 0)
	if got := GenerateOccurrences(date(2024, time.March, 2, 0, 0), models.CadenceNone, 5, 9, 0, now); len(got) != 1 {
		t.Errorf("expected the single future instant, got %v", got)
	}
	if got := GenerateOccurrences(date(2024, time.February, 2, 0, 0), models.CadenceNone, 5, 9, 0, now); len(got) != 0 {
		t.Errorf("expected nothing for a passed one-shot, got %v", got)
	}
	if got := GenerateOccurrences(date(2024, time.March, 2, 0, 0), models.CadenceDaily, 0, 9, 0, now); got != nil {
		t.Errorf("expected nil for count 0, got %v", got)
	}
}

func TestGenerateOccurrencesKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2024, time.March, 9, 0, 0, 0, 0, loc)
	now := time.Date(2024, time.March, 8, 12, 0, 0, 0, loc)

	for _, occ := range GenerateOccurrences(start, models.CadenceDaily, 3, 9, 0, now) {
		if occ.Hour() != 9 || occ.Minute() != 0 {
			t.Errorf("occurrence %v drifted from 09:00 local", occ)
		}
	}
}

func TestStep(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		cad    models.Cadence
		anchor int
		want   time.Time
	}{
		{"daily month rollover", date(2024, time.January, 31, 9, 0), models.CadenceDaily, 0, date(2024, time.February, 1, 9, 0)},
		{"weekly", date(2024, time.December, 28, 9, 0), models.CadenceWeekly, 0, date(2025, time.January, 4, 9, 0)},
		{"monthly clamp", date(2023, time.January, 31, 9, 0), models.CadenceMonthly, 31, date(2023, time.February, 28, 9, 0)},
		{"monthly restores anchor", date(2023, time.February, 28, 9, 0), models.CadenceMonthly, 31, date(2023, time.March, 31, 9, 0)},
		{"monthly december", date(2023, time.December, 15, 9, 0), models.CadenceMonthly, 15, date(2024, time.January, 15, 9, 0)},
		{"yearly leap anchor", date(2027, time.February, 28, 9, 0), models.CadenceYearly, 29, date(2028, time.February, 29, 9, 0)},
		{"none", date(2024, time.January, 1, 9, 0), models.CadenceNone, 0, date(2024, time.January, 1, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Step(tt.from, tt.cad, tt.anchor); !got.Equal(tt.want) {
				t.Errorf("Step() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextFire(t *testing.T) {
	after := date(2024, time.March, 1, 10, 0) // Friday

	tests := []struct {
		name    string
		trigger models.Trigger
		want    time.Time
		ok      bool
	}{
		{"daily later today", models.DailyTrigger{Hour: 18, Minute: 0}, date(2024, time.March, 1, 18, 0), true},
		{"daily tomorrow", models.DailyTrigger{Hour: 9, Minute: 0}, date(2024, time.March, 2, 9, 0), true},
		{"weekly monday", models.WeeklyTrigger{Weekday: time.Monday, Hour: 9, Minute: 0}, date(2024, time.March, 4, 9, 0), true},
		{"weekly same day passed", models.WeeklyTrigger{Weekday: time.Friday, Hour: 9, Minute: 0}, date(2024, time.March, 8, 9, 0), true},
		{"monthly 31st", models.MonthlyTrigger{Day: 31, Hour: 9, Minute: 0}, date(2024, time.March, 31, 9, 0), true},
		{"yearly", models.YearlyTrigger{Month: time.February, Day: 29, Hour: 9, Minute: 0}, date(2025, time.February, 28, 9, 0), true},
		{"fixed past", models.FixedTrigger{At: date(2024, time.February, 1, 9, 0)}, date(2024, time.February, 1, 9, 0), false},
		{"window has no instant", models.WindowTrigger{Cadence: models.CadenceDaily, Count: 14}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextFire(tt.trigger, after, time.UTC)
			if ok != tt.ok {
				t.Fatalf("NextFire() ok = %v, want %v", ok, tt.ok)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextFire() = %v, want %v", got, tt.want)
			}
		})
	}
}
