package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIDs(t *testing.T) {
	if got := DailyBookingID("alice"); got != "daily_auto_booking_alice" {
		t.Errorf("DailyBookingID() = %q", got)
	}
	if got := BookingJobID(KindCheckIn, "42"); got != "checkin_booking_42" {
		t.Errorf("BookingJobID() = %q", got)
	}
	if got := BookingJobID(KindCancel, "42"); got != "cancel_booking_42" {
		t.Errorf("BookingJobID() = %q", got)
	}
}

func TestTaskValidate(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"one-shot", Task{ID: "checkin_booking_1", Kind: KindCheckIn, RunAt: at}, false},
		{"recurring", Task{ID: "daily_auto_booking_a", Kind: KindDailyBooking, Cron: "0 22 * * *"}, false},
		{"missing id", Task{Kind: KindCheckIn, RunAt: at}, true},
		{"unknown kind", Task{ID: "x", Kind: "nap", RunAt: at}, true},
		{"bad cron", Task{ID: "x", Kind: KindSeatMapRefresh, Cron: "every day"}, true},
		{"one-shot without time", Task{ID: "x", Kind: KindCancel}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.task.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	created, err := m.Insert(ctx, Task{ID: "checkin_booking_42", Kind: KindCheckIn, RunAt: base})
	if err != nil || !created {
		t.Fatalf("Insert() = %v, %v", created, err)
	}
	created, _ = m.Insert(ctx, Task{ID: "checkin_booking_42", Kind: KindCheckIn, RunAt: base.Add(time.Hour)})
	if created {
		t.Error("second Insert() created a duplicate")
	}
	if got, _ := m.Get(ctx, "checkin_booking_42"); !got.RunAt.Equal(base) {
		t.Errorf("duplicate insert overwrote RunAt: %v", got.RunAt)
	}

	m.Insert(ctx, Task{ID: "cancel_booking_42", Kind: KindCancel, RunAt: base.Add(25 * time.Minute)})
	m.Insert(ctx, Task{ID: "paused", Kind: KindCancel, RunAt: base.Add(-time.Minute), Paused: true})

	due, _ := m.Due(ctx, base.Add(30*time.Minute), 10)
	if len(due) != 2 || due[0].ID != "checkin_booking_42" || due[1].ID != "cancel_booking_42" {
		t.Errorf("Due() = %+v", due)
	}
	due, _ = m.Due(ctx, base.Add(30*time.Minute), 1)
	if len(due) != 1 {
		t.Errorf("Due(limit 1) returned %d", len(due))
	}

	task, _ := m.Get(ctx, "paused")
	task.Paused = false
	if err := m.Update(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(ctx, Task{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v", err)
	}
	if err := m.Delete(ctx, "cancel_booking_42"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "cancel_booking_42"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v", err)
	}
	all, _ := m.List(ctx)
	if len(all) != 2 || all[0].ID != "paused" {
		t.Errorf("List() = %+v", all)
	}
}

func TestMemStoreRescheduleKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	m.Insert(ctx, Task{ID: "daily_auto_booking_a", Kind: KindDailyBooking, Cron: "0 22 * * *", RunAt: base})

	task, _ := m.Get(ctx, "daily_auto_booking_a")
	task.Paused = true
	m.Update(ctx, task)

	next := base.AddDate(0, 0, 1)
	moved, err := m.Reschedule(ctx, "daily_auto_booking_a", base, next)
	if err != nil || !moved {
		t.Fatalf("Reschedule() = %v, %v", moved, err)
	}
	got, _ := m.Get(ctx, "daily_auto_booking_a")
	if !got.RunAt.Equal(next) || !got.Paused {
		t.Errorf("after Reschedule: RunAt %v paused %v", got.RunAt, got.Paused)
	}

	tests := []struct {
		name string
		id   string
		from time.Time
	}{
		{"stale run time", "daily_auto_booking_a", base},
		{"missing task", "nope", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moved, err := m.Reschedule(ctx, tt.id, tt.from, next.Add(time.Hour))
			if err != nil || moved {
				t.Errorf("Reschedule() = %v, %v, want false", moved, err)
			}
		})
	}
}
