// Package booking runs the claim, confirm and release workflow for one
// preference: it books a seat, checks in before the platform's deadline and
// cancels or checks out when needed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/jobs"
	"github.com/example/seat-scheduler/internal/logging"
	"github.com/example/seat-scheduler/internal/notify"
	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/seat"
	"github.com/example/seat-scheduler/internal/seatmap"
	"github.com/example/seat-scheduler/internal/session"
	"github.com/example/seat-scheduler/internal/status"
	"github.com/example/seat-scheduler/internal/timewin"
)

const (
	DefaultMaxRetryTime   = 12
	DefaultAttemptDelay   = 2 * time.Second
	DefaultCheckoutMargin = 5 * time.Minute

	// The platform cancels a booking nobody checked into this long after it
	// starts.
	CheckInDeadline = 25 * time.Minute
	checkInLead     = 10 * time.Minute
	minLead         = time.Minute

	searchFailures  = 10
	bookFailures    = 3
	recordFailures  = 3
	checkInFailures = 3
)

// Opener establishes platform sessions.
type Opener interface {
	EnsureSession(ctx context.Context, p prefs.Preference) (*session.Session, error)
}

// Jobs is the part of the scheduler the engine uses for follow-up tasks.
type Jobs interface {
	Schedule(ctx context.Context, t jobs.Task) (bool, error)
	Remove(ctx context.Context, id string) error
}

// Engine is shared by all jobs; per-run state lives in a workflow.
type Engine struct {
	Sessions Opener
	SeatMap  *seatmap.Cache
	Jobs     Jobs
	Notifier notify.Notifier
	Catalog  *config.Catalog
	Retry    retry.Policy
	Location *time.Location

	MaxRetryTime   int
	AttemptDelay   time.Duration
	AutoCheckout   bool
	CheckoutMargin time.Duration

	// NewRand returns the random source for one booking run.
	NewRand func() *rand.Rand
	Now     func() time.Time
}

func (e *Engine) now() time.Time {
	loc := e.Location
	if loc == nil {
		loc = time.Local
	}
	if e.Now != nil {
		return e.Now().In(loc)
	}
	return time.Now().In(loc)
}

func (e *Engine) rand() *rand.Rand {
	if e.NewRand != nil {
		return e.NewRand()
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (e *Engine) maxRetryTime() int {
	if e.MaxRetryTime > 0 {
		return e.MaxRetryTime
	}
	return DefaultMaxRetryTime
}

func (e *Engine) attemptDelay() time.Duration {
	if e.AttemptDelay > 0 {
		return e.AttemptDelay
	}
	return DefaultAttemptDelay
}

func (e *Engine) checkoutMargin() time.Duration {
	if e.CheckoutMargin > 0 {
		return e.CheckoutMargin
	}
	return DefaultCheckoutMargin
}

func (e *Engine) notify(ctx context.Context, p prefs.Preference, kind notify.Kind, title, body string) {
	notify.Deliver(ctx, e.Notifier, notify.Message{Kind: kind, Title: title, Body: body, Recipient: p.NotifyTo})
}

// workflow is the state of one AutoBook run.
type workflow struct {
	e      *Engine
	p      prefs.Preference
	sess   *session.Session
	neg    *timewin.Negotiator
	target seat.Candidate
	fast   bool
	log    zerolog.Logger
}

// AutoBook books a seat for p on the next booking day and schedules the
// check-in and fallback cancel tasks for it.
func (e *Engine) AutoBook(ctx context.Context, p prefs.Preference) status.Code {
	logger := logging.From(ctx).With().Str("uid", p.AccountID).Int("room", p.RoomID).Logger()

	sess, err := e.Sessions.EnsureSession(ctx, p)
	if err != nil {
		logger.Error().Err(err).Msg("auto booking aborted: no session")
		e.notify(ctx, p, notify.Failure, "Booking failed",
			fmt.Sprintf("Could not log in to account %s: %s. Book manually and check your account settings.", p.AccountID, status.LoginFailed.Describe()))
		return status.LoginFailed
	}

	w := &workflow{
		e:    e,
		p:    p,
		sess: sess,
		log:  logger,
		neg: timewin.New(timewin.Params{
			Day:                    timewin.BookingDay(e.now(), timewin.Hours(e.Catalog.Hours)),
			StartHour:              p.StartHour,
			DurationHours:          p.DurationHours,
			StartToleranceHours:    p.StartToleranceHours,
			DurationToleranceHours: p.DurationToleranceHours,
			Hours:                  timewin.Hours(e.Catalog.Hours),
		}, e.rand()),
	}
	if p.PreferredSeat != 0 && e.SeatMap != nil {
		if id, ok := e.SeatMap.LookupSeat(p.RoomID, p.PreferredSeat); ok {
			w.target = seat.Candidate{ID: id, Label: strconv.Itoa(p.PreferredSeat)}
			w.fast = true
		}
	}

	code := status.LoopFailed
	for attempt := 0; attempt < e.maxRetryTime(); attempt++ {
		code = w.attempt(ctx, attempt)
		if code == status.Success || code == status.AlreadyBooked {
			break
		}
		logger.Warn().Int("attempt", attempt+1).Stringer("status", code).Msg("booking attempt failed")
		if err := e.Retry.Wait(ctx, e.attemptDelay()); err != nil {
			break
		}
	}

	switch code {
	case status.Success:
		w.booked(ctx)
	case status.AlreadyBooked:
		logger.Info().Msg("account already holds a booking")
		e.notify(ctx, p, notify.Info, "Already booked, this run had no effect",
			"The platform reports an existing booking for this account. If you hold none, book manually and check your settings.")
	default:
		logger.Error().Stringer("status", code).Msg("auto booking failed")
		e.notify(ctx, p, notify.Failure, "Booking failed",
			fmt.Sprintf("Automatic booking failed: %s (%s). Book manually and check your settings.", code.Describe(), code))
	}
	return code
}

// attempt runs one search and book round. A panic counts as a failed attempt.
func (w *workflow) attempt(ctx context.Context, n int) (code status.Code) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Int("attempt", n+1).Msg("booking attempt panicked")
			code = status.UnknownError
		}
	}()

	if !w.fast || n >= 2 {
		if code = w.searchLoop(ctx); code != status.Success {
			return code
		}
	}
	return w.bookLoop(ctx)
}

func (w *workflow) window() platform.Window {
	return platform.Window{Begin: w.neg.Begin(), Duration: w.neg.Duration()}
}

func (w *workflow) searchLoop(ctx context.Context) status.Code {
	return w.e.Retry.Loop(ctx, retry.Loop{
		Name:        "search_seat",
		MaxFailures: searchFailures,
		Op:          w.search,
		OnRetry: func(c status.Code, failed int) {
			switch c {
			case status.NoSeat:
				w.neg.AdjustRandomly(failed, 2.5, 200)
			case status.NotAffordable:
				w.neg.AdjustRandomly(failed, 1.5, 100)
			}
		},
	})
}

func (w *workflow) search(ctx context.Context) status.Code {
	res, code := w.sess.Client.SearchSeats(ctx, w.p.RoomID, w.window())
	if code != status.Success {
		return code
	}
	if adj := res.Adjustment; adj.Adjusted {
		w.log.Debug().Time("begin", time.Unix(adj.Begin, 0)).Int64("duration", adj.Duration).Msg("platform adjusted the window")
		if !w.neg.Accept(adj.Begin, adj.Duration) {
			return status.NotAffordable
		}
	}
	c, ok := seat.Select(w.p.PreferredSeat, res.Availability)
	if !ok {
		return status.NoSeat
	}
	w.target = c
	w.log.Info().Str("seat", c.Label).Str("seat_id", c.ID).Msg("seat selected")
	return status.Success
}

func (w *workflow) bookLoop(ctx context.Context) status.Code {
	return w.e.Retry.Loop(ctx, retry.Loop{
		Name:        "book_seat",
		MaxFailures: bookFailures,
		Op: func(ctx context.Context) status.Code {
			return w.sess.Client.BookSeat(ctx, w.target.ID, w.window())
		},
	})
}

// booked reads back the new booking, schedules its follow-up tasks and
// tells the user.
func (w *workflow) booked(ctx context.Context) {
	e, p := w.e, w.p
	var rec platform.Record
	code := e.Retry.Loop(ctx, retry.Loop{
		Name:        "latest_record",
		MaxFailures: recordFailures,
		Op: func(ctx context.Context) status.Code {
			list, c := w.sess.Client.Bookings(ctx)
			if c != status.Success {
				return c
			}
			if len(list) == 0 {
				return status.UnknownError
			}
			rec = list[0]
			return status.Success
		},
	})
	if code != status.Success {
		w.log.Error().Stringer("status", code).Msg("booked but the booking list is unreadable")
		e.notify(ctx, p, notify.Warning, "Seat booked, follow-up not scheduled",
			fmt.Sprintf("Seat %s was booked but the booking could not be read back (%s). Check in manually.", w.target.Label, code.Describe()))
		return
	}

	now := e.now()
	id := rec.ID.String()
	start := rec.Start()
	checkInAt := start.Add(-checkInLead)
	if earliest := now.Add(minLead); checkInAt.Before(earliest) {
		checkInAt = earliest
	}
	cancelAt := start.Add(CheckInDeadline)
	w.schedule(ctx, jobs.KindCheckIn, id, checkInAt)
	w.schedule(ctx, jobs.KindCancel, id, cancelAt)

	loc := now.Location()
	w.log.Info().Str("booking", id).Str("seat", rec.SeatNum.String()).Msg("booking confirmed")
	e.notify(ctx, p, notify.Success, "Seat booked",
		fmt.Sprintf("Booked seat %s in %s for %s. Check-in runs at %s; an unchecked booking is cancelled at %s.",
			rec.SeatNum, rec.RoomName, rec.Window(loc), checkInAt.In(loc).Format("15:04"), cancelAt.In(loc).Format("15:04")))
}

func (w *workflow) schedule(ctx context.Context, kind jobs.Kind, bookingID string, at time.Time) {
	scheduleFollowUp(ctx, w.e.Jobs, w.log, w.p, kind, bookingID, at)
}

func scheduleFollowUp(ctx context.Context, j Jobs, logger zerolog.Logger, p prefs.Preference, kind jobs.Kind, bookingID string, at time.Time) {
	t := jobs.Task{
		ID:           jobs.BookingJobID(kind, bookingID),
		Kind:         kind,
		RunAt:        at,
		PreferenceID: p.ID,
		BookingID:    bookingID,
	}
	if _, err := j.Schedule(ctx, t); err != nil {
		logger.Error().Err(err).Str("job", t.ID).Msg("schedule follow-up failed")
	}
}

// ErrUnknownAction is returned by Dispatch for kinds it does not handle.
var ErrUnknownAction = errors.New("booking: unknown action")
