package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/seat-scheduler/internal/jobs"
	"github.com/example/seat-scheduler/internal/logging"
	"github.com/example/seat-scheduler/internal/notify"
	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/session"
	"github.com/example/seat-scheduler/internal/status"
)

// Dispatch runs the follow-up action kind for bookingID.
func (e *Engine) Dispatch(ctx context.Context, kind jobs.Kind, p prefs.Preference, bookingID string) (status.Code, error) {
	switch kind {
	case jobs.KindCheckIn:
		return e.CheckIn(ctx, p, bookingID), nil
	case jobs.KindCancel:
		return e.Cancel(ctx, p, bookingID), nil
	case jobs.KindCheckOut:
		return e.CheckOut(ctx, p, bookingID), nil
	}
	return status.ParamError, fmt.Errorf("%w: %s", ErrUnknownAction, kind)
}

// Histories returns the account's recent bookings, newest first.
func (e *Engine) Histories(ctx context.Context, p prefs.Preference) ([]platform.Record, error) {
	sess, err := e.Sessions.EnsureSession(ctx, p)
	if err != nil {
		return nil, err
	}
	var out []platform.Record
	code := e.Retry.Loop(ctx, retry.Loop{
		Name:        "histories",
		MaxFailures: recordFailures,
		Op: func(ctx context.Context) status.Code {
			var c status.Code
			out, c = sess.Client.Bookings(ctx)
			return c
		},
	})
	if code != status.Success {
		return nil, fmt.Errorf("booking: list bookings: %s", code)
	}
	return out, nil
}

// findRecord returns NoNeed when bookingID is not among the recent bookings.
func findRecord(ctx context.Context, sess *session.Session, bookingID string) (platform.Record, status.Code) {
	list, code := sess.Client.Bookings(ctx)
	if code != status.Success {
		return platform.Record{}, code
	}
	for _, r := range list {
		if r.ID.String() == bookingID {
			return r, status.Success
		}
	}
	return platform.Record{}, status.NoNeed
}

func (e *Engine) open(ctx context.Context, p prefs.Preference, action string, logger zerolog.Logger) (*session.Session, bool) {
	sess, err := e.Sessions.EnsureSession(ctx, p)
	if err == nil {
		return sess, true
	}
	logger.Error().Err(err).Msg(action + " aborted: no session")
	e.notify(ctx, p, notify.Failure, "Could not "+action,
		fmt.Sprintf("Could not log in to account %s to %s booking. Do it manually.", p.AccountID, action))
	return nil, false
}

// CheckIn checks the booking in. On failure the fallback cancel task is
// scheduled and the user is told how long is left before it fires.
func (e *Engine) CheckIn(ctx context.Context, p prefs.Preference, bookingID string) status.Code {
	logger := logging.From(ctx).With().Str("uid", p.AccountID).Str("booking", bookingID).Logger()
	sess, ok := e.open(ctx, p, "check in", logger)
	if !ok {
		return status.LoginFailed
	}

	var (
		rec    platform.Record
		reason string
	)
	code := e.Retry.Loop(ctx, retry.Loop{
		Name:        "checkin",
		MaxFailures: checkInFailures,
		Op: func(ctx context.Context) status.Code {
			r, c := findRecord(ctx, sess, bookingID)
			if c != status.Success {
				return c
			}
			rec = r
			if !r.Pending() {
				return status.NoNeed
			}
			c, reason = sess.Client.CheckIn(ctx, bookingID)
			return c
		},
	})

	now := e.now()
	loc := now.Location()
	switch code {
	case status.Success:
		logger.Info().Msg("checked in")
		if err := e.Jobs.Remove(ctx, jobs.BookingJobID(jobs.KindCancel, bookingID)); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			logger.Error().Err(err).Msg("remove cancel task failed")
		}
		body := fmt.Sprintf("Checked in to seat %s in %s for %s.", rec.SeatNum, rec.RoomName, rec.Window(loc))
		if e.AutoCheckout {
			at := rec.End().Add(-e.checkoutMargin())
			if earliest := now.Add(minLead); at.Before(earliest) {
				at = earliest
			}
			scheduleFollowUp(ctx, e.Jobs, logger, p, jobs.KindCheckOut, bookingID, at)
			body += fmt.Sprintf(" Check-out runs at %s.", at.In(loc).Format("15:04"))
		}
		e.notify(ctx, p, notify.Success, "Checked in", body)
	case status.NoNeed:
		logger.Info().Str("state", rec.StatusLabel()).Msg("check-in not needed")
	default:
		cause := code.Describe()
		if reason != "" {
			cause = reason
		}
		logger.Error().Stringer("status", code).Str("reason", reason).Msg("check-in failed")
		if rec.ID == "" {
			e.notify(ctx, p, notify.Failure, "Check-in failed",
				fmt.Sprintf("Could not check in booking %s: %s. Check in manually.", bookingID, cause))
			return code
		}
		deadline := rec.Start().Add(CheckInDeadline)
		scheduleFollowUp(ctx, e.Jobs, logger, p, jobs.KindCancel, bookingID, deadline)
		e.notify(ctx, p, notify.Failure, "Check-in failed",
			fmt.Sprintf("Could not check in to seat %s in %s for %s: %s. %s",
				rec.SeatNum, rec.RoomName, rec.Window(loc), cause, countdown(now, deadline)))
	}
	return code
}

func countdown(now, deadline time.Time) string {
	left := deadline.Sub(now)
	if left <= 0 {
		return "The check-in deadline has passed."
	}
	mins := int(math.Ceil(left.Minutes()))
	return fmt.Sprintf("%d minutes left to check in manually before the booking is cancelled at %s.",
		mins, deadline.In(now.Location()).Format("15:04"))
}

// Cancel releases a booking nobody checked into.
func (e *Engine) Cancel(ctx context.Context, p prefs.Preference, bookingID string) status.Code {
	return e.release(ctx, p, bookingID, releaseAction{
		name:     "cancel",
		ready:    platform.Record.Pending,
		call:     (*platform.Client).Cancel,
		okTitle:  "Booking cancelled",
		okBody:   "Cancelled seat %s in %s for %s because it was not checked in within 25 minutes of its start.",
		errTitle: "Cancel failed",
	})
}

// CheckOut ends an active booking.
func (e *Engine) CheckOut(ctx context.Context, p prefs.Preference, bookingID string) status.Code {
	return e.release(ctx, p, bookingID, releaseAction{
		name:     "check out",
		ready:    platform.Record.Active,
		call:     (*platform.Client).CheckOut,
		okTitle:  "Checked out",
		okBody:   "Checked out of seat %s in %s for %s.",
		errTitle: "Check-out failed",
	})
}

type releaseAction struct {
	name     string
	ready    func(platform.Record) bool
	call     func(*platform.Client, context.Context, string) status.Code
	okTitle  string
	okBody   string
	errTitle string
}

func (e *Engine) release(ctx context.Context, p prefs.Preference, bookingID string, a releaseAction) status.Code {
	logger := logging.From(ctx).With().Str("uid", p.AccountID).Str("booking", bookingID).Logger()
	sess, ok := e.open(ctx, p, a.name, logger)
	if !ok {
		return status.LoginFailed
	}

	rec, code := findRecord(ctx, sess, bookingID)
	if code == status.Success && !a.ready(rec) {
		code = status.NoNeed
	}
	if code == status.Success {
		code = a.call(sess.Client, ctx, bookingID)
	}

	loc := e.now().Location()
	switch code {
	case status.Success:
		logger.Info().Msg(a.name + " done")
		e.notify(ctx, p, notify.Success, a.okTitle, fmt.Sprintf(a.okBody, rec.SeatNum, rec.RoomName, rec.Window(loc)))
	case status.NoNeed:
		logger.Info().Str("state", rec.StatusLabel()).Msg(a.name + " not needed")
	default:
		logger.Error().Stringer("status", code).Msg(a.name + " failed")
		e.notify(ctx, p, notify.Failure, a.errTitle,
			fmt.Sprintf("Could not %s booking %s: %s. Do it manually.", a.name, bookingID, code.Describe()))
	}
	return code
}
