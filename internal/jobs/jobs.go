// Package jobs defines persisted scheduled tasks and their stores.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrNotFound = errors.New("jobs: task not found")

// Kind selects the handler a task is dispatched to.
type Kind string

const (
	KindDailyBooking   Kind = "daily_auto_booking"
	KindCheckIn        Kind = "checkin_booking"
	KindCancel         Kind = "cancel_booking"
	KindCheckOut       Kind = "checkout_booking"
	KindSeatMapRefresh Kind = "seat_map_refresh"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDailyBooking, KindCheckIn, KindCancel, KindCheckOut, KindSeatMapRefresh:
		return true
	}
	return false
}

// SeatMapRefreshID is the id of the single seat map refresh task.
const SeatMapRefreshID = string(KindSeatMapRefresh)

// DailyBookingID is the id of a user's recurring booking task.
func DailyBookingID(userID string) string {
	return string(KindDailyBooking) + "_" + userID
}

// BookingJobID is the id of a one-shot task bound to a booking, for example
// checkin_booking_42.
func BookingJobID(kind Kind, bookingID string) string {
	return string(kind) + "_" + bookingID
}

// Task is a scheduled unit of work. A task with a Cron spec is recurring and
// RunAt holds its next fire time; otherwise it runs once at RunAt.
type Task struct {
	ID           string
	Kind         Kind
	Cron         string
	RunAt        time.Time
	PreferenceID int64
	BookingID    string
	Paused       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) Recurring() bool { return t.Cron != "" }

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("id required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
	if t.Recurring() {
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("cron %q: %w", t.Cron, err)
		}
	} else if t.RunAt.IsZero() {
		return fmt.Errorf("run_at required for one-shot task")
	}
	return nil
}

// Store persists tasks. Insert is insert-if-absent and reports whether the
// task was created.
type Store interface {
	Insert(ctx context.Context, t Task) (bool, error)
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, t Task) error
	Delete(ctx context.Context, id string) error
	// Reschedule moves id from run time from to run time to, leaving every
	// other field alone. It reports false when the stored run time is no
	// longer from.
	Reschedule(ctx context.Context, id string, from, to time.Time) (bool, error)
	// Due returns unpaused tasks with RunAt at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)
	List(ctx context.Context) ([]Task, error)
}
