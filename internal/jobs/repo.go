package jobs

import (
	"context"
	"time"

	"github.com/example/seat-scheduler/internal/db"
)

// Repo is the Postgres task store.
type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const selectColumns = `id,kind,cron_spec,run_at,preference_id,booking_id,paused,created_at,updated_at`

func (r *Repo) Insert(ctx context.Context, t Task) (bool, error) {
	n, err := r.db.Exec(ctx, `
INSERT INTO scheduled_tasks(id,kind,cron_spec,run_at,preference_id,booking_id,paused)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`,
		t.ID, string(t.Kind), t.Cron, t.RunAt, t.PreferenceID, t.BookingID, t.Paused)
	if err != nil {
		return false, db.WrapNotFound(err)
	}
	return n == 1, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Task, error) {
	t, err := scan(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM scheduled_tasks WHERE id=$1`, id))
	if db.IsNotFound(err) {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (r *Repo) Update(ctx context.Context, t Task) error {
	n, err := r.db.Exec(ctx, `
UPDATE scheduled_tasks
SET kind=$2, cron_spec=$3, run_at=$4, preference_id=$5, booking_id=$6, paused=$7, updated_at=now()
WHERE id=$1`,
		t.ID, string(t.Kind), t.Cron, t.RunAt, t.PreferenceID, t.BookingID, t.Paused)
	if err != nil {
		return db.WrapNotFound(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Reschedule(ctx context.Context, id string, from, to time.Time) (bool, error) {
	n, err := r.db.Exec(ctx, `
UPDATE scheduled_tasks SET run_at=$3, updated_at=now()
WHERE id=$1 AND run_at=$2`, id, from, to)
	if err != nil {
		return false, db.WrapNotFound(err)
	}
	return n == 1, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	n, err := r.db.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id=$1`, id)
	if err != nil {
		return db.WrapNotFound(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	return r.query(ctx, `
SELECT `+selectColumns+`
FROM scheduled_tasks
WHERE NOT paused AND run_at <= $1
ORDER BY run_at ASC
LIMIT $2`, now, limit)
}

func (r *Repo) List(ctx context.Context) ([]Task, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM scheduled_tasks ORDER BY run_at ASC, id ASC`)
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Task, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scan(row db.Row) (Task, error) {
	var t Task
	var kind string
	if err := row.Scan(&t.ID, &kind, &t.Cron, &t.RunAt, &t.PreferenceID, &t.BookingID, &t.Paused, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, db.WrapNotFound(err)
	}
	t.Kind = Kind(kind)
	return t, nil
}
