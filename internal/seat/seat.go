// Package seat picks a concrete seat out of the availability the platform
// reports for a time window.
package seat

import (
	"math"
	"strconv"
)

// Seat states reported by the platform.
const (
	StateSelectable  = 0
	StateRecommended = 2
)

// Candidate is a seat the platform listed for a search.
type Candidate struct {
	ID    string
	Label string
	State int
}

// Number parses the printed seat label, returning false for labels that are
// not plain integers.
func (c Candidate) Number() (int, bool) {
	n, err := strconv.Atoi(c.Label)
	return n, err == nil
}

// Availability is the seat portion of a search answer.
type Availability struct {
	BestPair []Candidate
	POIs     []Candidate
}

// Select resolves the seat to book. A preference of 0 takes the platform's
// recommendation. Otherwise the nearest usable seat wins, where a closer seat
// only displaces the current pick if it is more than 10 seats closer or has
// an odd label.
func Select(preferred int, av Availability) (Candidate, bool) {
	if preferred == 0 {
		if len(av.BestPair) == 0 {
			return Candidate{}, false
		}
		return av.BestPair[0], true
	}

	var (
		best   Candidate
		found  bool
		minAbs = math.MaxInt
	)
	for _, c := range av.POIs {
		if c.State != StateSelectable && c.State != StateRecommended {
			continue
		}
		n, ok := c.Number()
		if !ok {
			continue
		}
		d := abs(n - preferred)
		if d == 0 {
			return c, true
		}
		if d < minAbs && (minAbs-d > 10 || n%2 != 0) {
			minAbs = d
			best = c
			found = true
		}
	}
	return best, found
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
