package seatmap

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/seat"
	"github.com/example/seat-scheduler/internal/session"
	"github.com/example/seat-scheduler/internal/status"
	"github.com/example/seat-scheduler/internal/timewin"
)

// ErrNoSession means no preference could authenticate for the refresh.
var ErrNoSession = errors.New("seatmap: no usable session")

const searchFailures = 3

// Opener establishes platform sessions.
type Opener interface {
	EnsureSession(ctx context.Context, p prefs.Preference) (*session.Session, error)
}

// Refresher rebuilds the cache from live seat searches.
type Refresher struct {
	Cache    *Cache
	Store    Store
	Prefs    prefs.Store
	Sessions Opener
	Catalog  *config.Catalog
	Retry    retry.Policy
	// Location is the platform's time zone; nil uses time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Refresh searches every catalog room with the first account that can log
// in, merges the seats it sees and persists the result.
func (r *Refresher) Refresh(ctx context.Context) error {
	all, err := r.Prefs.List(ctx)
	if err != nil {
		return err
	}

	var sess *session.Session
	for _, p := range all {
		if !p.Enabled {
			continue
		}
		s, err := r.Sessions.EnsureSession(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("uid", p.AccountID).Msg("seat map refresh: account unusable, trying next")
			continue
		}
		sess = s
		break
	}
	if sess == nil {
		log.Error().Msg("seat map refresh skipped: no account could log in")
		return ErrNoSession
	}

	w := placeholderWindow(r.now(), r.Catalog.Hours)
	for _, room := range r.Catalog.RoomIDs() {
		var res platform.SearchResult
		code := r.Retry.Loop(ctx, retry.Loop{
			Name:        "seatmap_search",
			MaxFailures: searchFailures,
			Op: func(ctx context.Context) status.Code {
				var c status.Code
				res, c = sess.Client.SearchSeats(ctx, room, w)
				return c
			},
		})
		if code != status.Success {
			log.Warn().Int("room", room).Stringer("status", code).Msg("seat map refresh: room search failed")
			continue
		}
		pairs := collect(res.Availability)
		r.Cache.Merge(room, pairs)
		log.Debug().Int("room", room).Int("seats", len(pairs)).Msg("seat map room refreshed")
	}

	if err := r.Store.Save(r.Cache.Snapshot()); err != nil {
		log.Error().Err(err).Msg("seat map save failed")
	}
	return nil
}

func (r *Refresher) now() time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	if r.Now != nil {
		return r.Now().In(loc)
	}
	return time.Now().In(loc)
}

func collect(av seat.Availability) map[string]int64 {
	out := map[string]int64{}
	for _, list := range [][]seat.Candidate{av.BestPair, av.POIs} {
		for _, c := range list {
			id, err := strconv.ParseInt(c.ID, 10, 64)
			if err != nil || c.Label == "" {
				continue
			}
			out[c.Label] = id
		}
	}
	return out
}

// placeholderWindow is a one hour window the platform will accept: the next
// full hour when that is still a valid start on the booking day, otherwise
// the next opening time.
func placeholderWindow(now time.Time, h config.Hours) platform.Window {
	day := timewin.BookingDay(now, timewin.Hours(h))
	latest := day.Add(time.Duration(h.LatestStart) * time.Hour)
	start := day.Add(time.Duration(h.Open) * time.Hour)
	next := now.Truncate(time.Hour).Add(time.Hour)
	switch {
	case next.After(latest):
		start = day.AddDate(0, 0, 1).Add(time.Duration(h.Open) * time.Hour)
	case next.After(start):
		start = next
	}
	return platform.Window{Begin: start.Unix(), Duration: int64(time.Hour / time.Second)}
}
