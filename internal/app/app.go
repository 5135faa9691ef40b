// Package app wires the long-lived pieces of the scheduler into one Runtime
// that commands share.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/crypto"
	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/jobs"
	"github.com/example/seat-scheduler/internal/migrate"
	"github.com/example/seat-scheduler/internal/notify"
	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/scheduler"
	"github.com/example/seat-scheduler/internal/seatmap"
	"github.com/example/seat-scheduler/internal/session"
	"github.com/example/seat-scheduler/internal/status"
)

// Stores are the persistence backends a Runtime runs on.
type Stores struct {
	Prefs   prefs.Store
	Jobs    jobs.Store
	Cookies session.CookieStore
	SeatMap seatmap.Store
}

type Runtime struct {
	Config   config.Config
	Catalog  *config.Catalog
	Location *time.Location

	Prefs     prefs.Store
	Sessions  *session.Manager
	SeatMap   *seatmap.Cache
	Refresher *seatmap.Refresher
	Scheduler *scheduler.Scheduler
	Engine    *booking.Engine
	Notifier  notify.Notifier

	// Set by Open.
	DB       *db.DB
	PrefRepo *prefs.Repo

	closers []func()
}

// Open connects to Postgres (and Redis when configured), applies migrations
// and builds the runtime on top of them.
func Open(ctx context.Context, cfg config.Config, migrateUp bool) (*Runtime, error) {
	catalog, err := config.LoadCatalog(cfg.PlatformConfig)
	if err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if migrateUp {
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, err
		}
	}
	aead, err := crypto.New(cfg.SecretKey)
	if err != nil {
		d.Close()
		return nil, err
	}

	repo := prefs.NewRepo(d, aead)
	stores := Stores{
		Prefs:   repo,
		Jobs:    jobs.NewRepo(d),
		Cookies: session.NewMemoryStore(),
		SeatMap: seatmap.FileStore{Path: cfg.SeatMapFile},
	}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, keeping cookies in memory")
			rdb.Close()
			rdb = nil
		} else {
			stores.Cookies = session.NewRedisStore(rdb)
		}
	}

	rt, err := Build(cfg, catalog, stores)
	if err != nil {
		d.Close()
		return nil, err
	}
	rt.DB, rt.PrefRepo = d, repo
	rt.closers = append(rt.closers, d.Close)
	if rdb != nil {
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	}
	return rt, nil
}

// Build assembles a runtime over the given stores.
func Build(cfg config.Config, catalog *config.Catalog, st Stores) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	factory := platform.NewFactory(platform.Options{
		BaseURL:       catalog.BaseURL,
		CategoryID:    catalog.CategoryID,
		OrgID:         catalog.OrgID,
		Timeout:       cfg.HTTPTimeout,
		Proxy:         cfg.ProxyURL,
		FallbackProxy: cfg.FallbackProxyURL,
		Limiter:       limiter,
	})
	policy := retry.Default()
	sessions := session.NewManager(factory, st.Cookies, session.Options{
		HashKey:  cfg.CookieHashKey,
		BlockKey: cfg.CookieBlockKey,
		Validity: cfg.SessionValidity,
		Retry:    policy,
	})

	initial, err := st.SeatMap.Load()
	if err != nil {
		log.Warn().Err(err).Msg("seat map unreadable, starting empty")
		initial = nil
	}
	cache := seatmap.NewCache(catalog.RoomIDs(), initial)

	sched := scheduler.New(st.Jobs, scheduler.Options{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		MisfireGrace: cfg.MisfireGrace,
		Location:     loc,
	})

	rt := &Runtime{
		Config:   cfg,
		Catalog:  catalog,
		Location: loc,
		Prefs:    st.Prefs,
		Sessions: sessions,
		SeatMap:  cache,
		Refresher: &seatmap.Refresher{
			Cache:    cache,
			Store:    st.SeatMap,
			Prefs:    st.Prefs,
			Sessions: sessions,
			Catalog:  catalog,
			Retry:    policy,
			Location: loc,
		},
		Scheduler: sched,
		Engine: &booking.Engine{
			Sessions:       sessions,
			SeatMap:        cache,
			Jobs:           sched,
			Notifier:       notifier,
			Catalog:        catalog,
			Retry:          policy,
			Location:       loc,
			MaxRetryTime:   cfg.MaxRetryTime,
			AutoCheckout:   cfg.AutoCheckout,
			CheckoutMargin: cfg.CheckoutMargin,
		},
		Notifier: notifier,
	}
	rt.registerHandlers()
	return rt, nil
}

func newNotifier(cfg config.Config) (notify.Notifier, error) {
	n := notify.Multi{notify.Log{}}
	if cfg.SlackWebhookURL != "" {
		n = append(n, notify.Slack{WebhookURL: cfg.SlackWebhookURL})
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := notify.NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			return nil, err
		}
		n = append(n, d)
	}
	return n, nil
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *Runtime) registerHandlers() {
	rt.Scheduler.Handle(jobs.KindDailyBooking, rt.runDailyBooking)
	for _, k := range []jobs.Kind{jobs.KindCheckIn, jobs.KindCancel, jobs.KindCheckOut} {
		rt.Scheduler.Handle(k, rt.runFollowUp)
	}
	rt.Scheduler.Handle(jobs.KindSeatMapRefresh, func(ctx context.Context, _ jobs.Task) error {
		return rt.Refresher.Refresh(ctx)
	})
}

func (rt *Runtime) runDailyBooking(ctx context.Context, t jobs.Task) error {
	p, err := rt.Prefs.Get(ctx, t.PreferenceID)
	if err != nil {
		return fmt.Errorf("load preference %d: %w", t.PreferenceID, err)
	}
	if !p.Enabled {
		log.Info().Str("job", t.ID).Msg("preference disabled, skipping booking")
		return nil
	}
	switch code := rt.Engine.AutoBook(ctx, p); code {
	case status.Success, status.AlreadyBooked:
		return nil
	default:
		return fmt.Errorf("auto booking: %s", code)
	}
}

func (rt *Runtime) runFollowUp(ctx context.Context, t jobs.Task) error {
	p, err := rt.Prefs.Get(ctx, t.PreferenceID)
	if err != nil {
		return fmt.Errorf("load preference %d: %w", t.PreferenceID, err)
	}
	code, err := rt.Engine.Dispatch(ctx, t.Kind, p, t.BookingID)
	if err != nil {
		return err
	}
	switch code {
	case status.Success, status.NoNeed:
		return nil
	default:
		return fmt.Errorf("%s: %s", t.Kind, code)
	}
}

// DailyTask is the recurring booking task for p.
func (rt *Runtime) DailyTask(p prefs.Preference) jobs.Task {
	spec := p.TriggerCron
	if spec == "" {
		spec = rt.Config.DailyCron
	}
	return jobs.Task{
		ID:           jobs.DailyBookingID(p.UserID),
		Kind:         jobs.KindDailyBooking,
		Cron:         spec,
		PreferenceID: p.ID,
	}
}

// SyncPreference ensures p's daily task exists and follows p.Enabled.
func (rt *Runtime) SyncPreference(ctx context.Context, p prefs.Preference) error {
	t, err := rt.Scheduler.Ensure(ctx, rt.DailyTask(p))
	if err != nil {
		return err
	}
	switch {
	case !p.Enabled && !t.Paused:
		return rt.Scheduler.Pause(ctx, t.ID)
	case p.Enabled && t.Paused:
		return rt.Scheduler.Resume(ctx, t.ID)
	}
	return nil
}

// SyncDailyJobs brings every preference's daily task and the seat map
// refresh task in line with the current configuration.
func (rt *Runtime) SyncDailyJobs(ctx context.Context) error {
	all, err := rt.Prefs.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range all {
		if err := rt.SyncPreference(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("preference %d: %w", p.ID, err))
		}
	}
	if _, err := rt.Scheduler.Ensure(ctx, jobs.Task{
		ID:   jobs.SeatMapRefreshID,
		Kind: jobs.KindSeatMapRefresh,
		Cron: rt.Config.SeatMapCron,
	}); err != nil {
		errs = append(errs, err)
	}
	log.Info().Int("preferences", len(all)).Msg("daily jobs synced")
	return errors.Join(errs...)
}
