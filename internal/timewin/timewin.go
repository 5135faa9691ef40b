// Package timewin negotiates the booking window: it decides whether a window
// offered by the platform is close enough to what the user asked for, and
// perturbs the request when no seat is free.
package timewin

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// MinDuration is the shortest booking the negotiator accepts.
const MinDuration = 3 * time.Hour

// Hours are the room's opening hours on the booking day.
type Hours struct {
	Open        int
	LatestStart int
	Close       int
}

// DefaultHours matches the platform: doors 07:00, last start 19:00, close 22:00.
var DefaultHours = Hours{Open: 7, LatestStart: 19, Close: 22}

// BookingDay returns midnight of the day to book for: today until closing
// time, tomorrow afterwards. A zero h.Close uses DefaultHours.
func BookingDay(now time.Time, h Hours) time.Time {
	closeAt := h.Close
	if closeAt == 0 {
		closeAt = DefaultHours.Close
	}
	y, m, d := now.Date()
	if now.Hour() >= closeAt {
		d++
	}
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

type Params struct {
	Day                    time.Time
	StartHour              int
	DurationHours          int
	StartToleranceHours    int
	DurationToleranceHours int
	Hours                  Hours
}

// Negotiator tracks the offsets applied to the requested window. It is owned
// by a single booking workflow.
type Negotiator struct {
	day          time.Time
	baseStart    int64
	baseDuration int64
	startTol     int64
	durationTol  int64
	hours        Hours
	rnd          *rand.Rand

	startDelta    int64
	durationDelta int64
}

func New(p Params, rnd *rand.Rand) *Negotiator {
	if p.Hours == (Hours{}) {
		p.Hours = DefaultHours
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Negotiator{
		day:          p.Day,
		baseStart:    p.Day.Add(time.Duration(p.StartHour) * time.Hour).Unix(),
		baseDuration: int64(p.DurationHours) * 3600,
		startTol:     int64(p.StartToleranceHours) * 3600,
		durationTol:  int64(p.DurationToleranceHours) * 3600,
		hours:        p.Hours,
		rnd:          rnd,
	}
}

// IsAffordable reports whether the offsets stay within tolerance and keep the
// booking at least MinDuration long. Offsets are in seconds.
func (n *Negotiator) IsAffordable(startDelta, durationDelta int64) bool {
	if abs(startDelta) > n.startTol {
		return false
	}
	if abs(durationDelta) > n.durationTol {
		return false
	}
	return n.baseDuration+durationDelta >= int64(MinDuration/time.Second)
}

// AdjustRandomly draws new offsets whose spread grows with failed and factor.
// It keeps the previous offsets and returns false if none of the attempts
// lands inside tolerance.
func (n *Negotiator) AdjustRandomly(failed int, factor float64, attempts int) bool {
	border := int64(math.Round(float64(failed) / 10 * 3600 * factor))
	lower := n.hourOnDay(n.hours.Open) - n.baseStart
	upper := n.hourOnDay(n.hours.LatestStart) - n.baseStart
	closeAt := n.hourOnDay(n.hours.Close)

	for i := 0; i < attempts; i++ {
		sd := roundHour(n.draw(border))
		dd := roundHour(n.draw(border))

		sd = min(max(sd, lower), upper)
		dd = min(dd, closeAt-(n.baseStart+sd)-n.baseDuration)

		if n.IsAffordable(sd, dd) {
			n.startDelta, n.durationDelta = sd, dd
			return true
		}
	}
	log.Warn().Int("failed", failed).Float64("factor", factor).Int("attempts", attempts).
		Msg("no affordable window adjustment found, keeping previous offsets")
	return false
}

// Accept adopts a window the platform proposed if it is affordable.
func (n *Negotiator) Accept(begin, duration int64) bool {
	sd, dd := begin-n.baseStart, duration-n.baseDuration
	if !n.IsAffordable(sd, dd) {
		return false
	}
	n.startDelta, n.durationDelta = sd, dd
	return true
}

// Begin is the unix time of the current requested start.
func (n *Negotiator) Begin() int64 { return n.baseStart + n.startDelta }

// Duration is the current requested length in seconds.
func (n *Negotiator) Duration() int64 { return n.baseDuration + n.durationDelta }

func (n *Negotiator) Offsets() (start, duration int64) { return n.startDelta, n.durationDelta }

func (n *Negotiator) hourOnDay(h int) int64 {
	return n.day.Add(time.Duration(h) * time.Hour).Unix()
}

// draw returns a uniform integer in [-border, border].
func (n *Negotiator) draw(border int64) int64 {
	if border <= 0 {
		return 0
	}
	return n.rnd.Int63n(2*border+1) - border
}

func roundHour(sec int64) int64 {
	return int64(math.Round(float64(sec)/3600)) * 3600
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
