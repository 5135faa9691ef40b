//go:build integration

package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/migrate"
)

func TestRepo(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := migrate.Up(ctx, d); err != nil {
		t.Fatal(err)
	}
	r := NewRepo(d)
	id := "checkin_booking_it" + time.Now().Format("150405.000")
	defer r.Delete(ctx, id)

	at := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	for i, want := range []bool{true, false} {
		created, err := r.Insert(ctx, Task{ID: id, Kind: KindCheckIn, RunAt: at, BookingID: "it"})
		if err != nil || created != want {
			t.Fatalf("Insert #%d = %v, %v", i, created, err)
		}
	}
	got, err := r.Get(ctx, id)
	if err != nil || got.Kind != KindCheckIn || !got.RunAt.Equal(at) {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	due, err := r.Due(ctx, time.Now(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range due {
		found = found || d.ID == id
	}
	if !found {
		t.Error("Due() missed the task")
	}

	got.Paused = true
	if err := r.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	later := at.Add(time.Hour)
	if moved, err := r.Reschedule(ctx, id, at, later); err != nil || !moved {
		t.Fatalf("Reschedule() = %v, %v", moved, err)
	}
	if moved, _ := r.Reschedule(ctx, id, at, later.Add(time.Hour)); moved {
		t.Error("Reschedule() moved a task from a stale run time")
	}
	if got, _ := r.Get(ctx, id); !got.Paused || !got.RunAt.Equal(later) {
		t.Errorf("after Reschedule: %+v", got)
	}
	if err := r.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v", err)
	}
}
