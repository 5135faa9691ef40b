package prefs

import (
	"context"
	"fmt"

	"github.com/example/seat-scheduler/internal/crypto"
	"github.com/example/seat-scheduler/internal/db"
)

// Repo is the Postgres preference store. Account secrets are sealed with the
// account id as associated data.
type Repo struct {
	db   *db.DB
	aead *crypto.AEAD
}

func NewRepo(d *db.DB, aead *crypto.AEAD) *Repo { return &Repo{db: d, aead: aead} }

const selectColumns = `id,user_id,account_id,account_secret,room_id,start_hour,duration_hours,start_tolerance_hours,duration_tolerance_hours,preferred_seat,notify_to,trigger_cron,enabled`

// Save inserts p, or updates the row owned by the same user.
func (r *Repo) Save(ctx context.Context, p Preference) (int64, error) {
	sealed, err := r.aead.Seal(p.AccountSecret, p.AccountID)
	if err != nil {
		return 0, fmt.Errorf("prefs: seal secret: %w", err)
	}
	var id int64
	err = r.db.QueryRow(ctx, `
INSERT INTO preferences(user_id,account_id,account_secret,room_id,start_hour,duration_hours,start_tolerance_hours,duration_tolerance_hours,preferred_seat,notify_to,trigger_cron,enabled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (user_id) DO UPDATE SET
	account_id=EXCLUDED.account_id,
	account_secret=EXCLUDED.account_secret,
	room_id=EXCLUDED.room_id,
	start_hour=EXCLUDED.start_hour,
	duration_hours=EXCLUDED.duration_hours,
	start_tolerance_hours=EXCLUDED.start_tolerance_hours,
	duration_tolerance_hours=EXCLUDED.duration_tolerance_hours,
	preferred_seat=EXCLUDED.preferred_seat,
	notify_to=EXCLUDED.notify_to,
	trigger_cron=EXCLUDED.trigger_cron,
	enabled=EXCLUDED.enabled,
	updated_at=now()
RETURNING id`,
		p.UserID, p.AccountID, sealed, p.RoomID, p.StartHour, p.DurationHours, p.StartToleranceHours,
		p.DurationToleranceHours, p.PreferredSeat, p.NotifyTo, p.TriggerCron, p.Enabled,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	n, err := r.db.Exec(ctx, `UPDATE preferences SET enabled=$2, updated_at=now() WHERE id=$1`, id, enabled)
	if err != nil {
		return db.WrapNotFound(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id int64) (Preference, error) {
	p, err := r.scan(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM preferences WHERE id=$1`, id))
	if db.IsNotFound(err) {
		return Preference{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) List(ctx context.Context) ([]Preference, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM preferences ORDER BY id`)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) scan(row db.Row) (Preference, error) {
	var p Preference
	var sealed string
	if err := row.Scan(&p.ID, &p.UserID, &p.AccountID, &sealed, &p.RoomID, &p.StartHour, &p.DurationHours,
		&p.StartToleranceHours, &p.DurationToleranceHours, &p.PreferredSeat, &p.NotifyTo, &p.TriggerCron, &p.Enabled); err != nil {
		return Preference{}, db.WrapNotFound(err)
	}
	secret, err := r.aead.Open(sealed, p.AccountID)
	if err != nil {
		return Preference{}, fmt.Errorf("prefs: open secret for %d: %w", p.ID, err)
	}
	p.AccountSecret = secret
	return p, nil
}
