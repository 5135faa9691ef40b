package timewin

import (
	"math/rand"
	"testing"
	"time"
)

var shanghai = time.FixedZone("CST", 8*3600)

func newNegotiator(start, dur, startTol, durTol int, seed int64) *Negotiator {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, shanghai)
	return New(Params{
		Day:                    day,
		StartHour:              start,
		DurationHours:          dur,
		StartToleranceHours:    startTol,
		DurationToleranceHours: durTol,
	}, rand.New(rand.NewSource(seed)))
}

func TestIsAffordable(t *testing.T) {
	n := newNegotiator(8, 10, 1, 1, 1)
	tests := []struct {
		name       string
		start, dur int64
		want       bool
	}{
		{"no offset", 0, 0, true},
		{"start at tolerance", 3600, 0, true},
		{"start past tolerance", 3601, 0, false},
		{"negative start at tolerance", -3600, 0, true},
		{"duration at tolerance", 0, -3600, true},
		{"duration past tolerance", 0, 3601, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.IsAffordable(tt.start, tt.dur); got != tt.want {
				t.Errorf("IsAffordable(%d, %d) = %v, want %v", tt.start, tt.dur, got, tt.want)
			}
		})
	}

	short := newNegotiator(8, 4, 0, 2, 1)
	if short.IsAffordable(0, -3600) != true {
		t.Error("3h booking should be affordable")
	}
	if short.IsAffordable(0, -7200) {
		t.Error("2h booking must not be affordable")
	}
}

func TestAdjustRandomlyStaysInBounds(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		n := newNegotiator(8, 10, 4, 6, seed)
		for failed := 1; failed <= 10; failed++ {
			if !n.AdjustRandomly(failed, 2.5, 200) {
				continue
			}
			sd, dd := n.Offsets()
			if sd%3600 != 0 || dd%3600 != 0 {
				t.Fatalf("seed %d: offsets not whole hours: %d %d", seed, sd, dd)
			}
			if !n.IsAffordable(sd, dd) {
				t.Fatalf("seed %d: accepted unaffordable offsets %d %d", seed, sd, dd)
			}
			begin := time.Unix(n.Begin(), 0).In(shanghai)
			end := time.Unix(n.Begin()+n.Duration(), 0).In(shanghai)
			if begin.Hour() < 7 || begin.Hour() > 19 {
				t.Fatalf("seed %d: start %v outside opening hours", seed, begin)
			}
			if end.After(time.Date(2024, 5, 1, 22, 0, 0, 0, shanghai)) {
				t.Fatalf("seed %d: end %v after close", seed, end)
			}
		}
	}
}

func TestAdjustRandomlyZeroBorder(t *testing.T) {
	n := newNegotiator(8, 10, 0, 0, 1)
	if !n.AdjustRandomly(0, 2.5, 1) {
		t.Fatal("zero border should keep the base window")
	}
	if sd, dd := n.Offsets(); sd != 0 || dd != 0 {
		t.Errorf("offsets = %d %d, want 0 0", sd, dd)
	}
}

func TestAdjustRandomlyKeepsPreviousOnFailure(t *testing.T) {
	// tolerance zero and a base window that already overruns close: every
	// draw clamps duration below base, which tolerance forbids
	n := newNegotiator(19, 4, 0, 0, 3)
	if n.AdjustRandomly(10, 2.5, 20) {
		t.Fatal("expected no affordable adjustment")
	}
	if sd, dd := n.Offsets(); sd != 0 || dd != 0 {
		t.Errorf("offsets changed to %d %d", sd, dd)
	}
}

func TestAccept(t *testing.T) {
	n := newNegotiator(8, 10, 1, 1, 1)
	base := n.Begin()

	if n.Accept(base+2*3600, 10*3600) {
		t.Error("accepted start two hours late with 1h tolerance")
	}
	if !n.Accept(base+3600, 9*3600) {
		t.Fatal("rejected affordable adjustment")
	}
	if n.Begin() != base+3600 || n.Duration() != 9*3600 {
		t.Errorf("window = %d/%d", n.Begin(), n.Duration())
	}
}

func TestBookingDay(t *testing.T) {
	late := Hours{Open: 8, LatestStart: 20, Close: 23}
	tests := []struct {
		now   time.Time
		hours Hours
		want  time.Time
	}{
		{time.Date(2024, 5, 1, 21, 59, 0, 0, shanghai), DefaultHours, time.Date(2024, 5, 1, 0, 0, 0, 0, shanghai)},
		{time.Date(2024, 5, 1, 22, 0, 0, 0, shanghai), DefaultHours, time.Date(2024, 5, 2, 0, 0, 0, 0, shanghai)},
		{time.Date(2024, 5, 31, 23, 30, 0, 0, shanghai), DefaultHours, time.Date(2024, 6, 1, 0, 0, 0, 0, shanghai)},
		{time.Date(2024, 5, 1, 22, 0, 0, 0, shanghai), Hours{}, time.Date(2024, 5, 2, 0, 0, 0, 0, shanghai)},
		{time.Date(2024, 5, 1, 22, 30, 0, 0, shanghai), late, time.Date(2024, 5, 1, 0, 0, 0, 0, shanghai)},
		{time.Date(2024, 5, 1, 23, 0, 0, 0, shanghai), late, time.Date(2024, 5, 2, 0, 0, 0, 0, shanghai)},
	}
	for _, tt := range tests {
		if got := BookingDay(tt.now, tt.hours); !got.Equal(tt.want) {
			t.Errorf("BookingDay(%v, close %d) = %v, want %v", tt.now, tt.hours.Close, got, tt.want)
		}
	}
}
