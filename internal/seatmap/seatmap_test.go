package seatmap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/platform/platformtest"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/session"
)

func TestCacheMergeKeepsUnseen(t *testing.T) {
	c := NewCache([]int{31, 36}, nil)
	c.Merge(31, map[string]int64{"259": 9259, "261": 9261})
	before := c.Room(31)

	c.Merge(31, map[string]int64{"259": 1, "17": 9001})
	if got := c.Room(31); len(got) != 3 || got["259"] != 1 || got["261"] != 9261 {
		t.Errorf("Room(31) = %v", got)
	}
	if before["259"] != 9259 || len(before) != 2 {
		t.Errorf("published map mutated: %v", before)
	}
	if id, ok := c.LookupSeat(31, 17); !ok || id != "9001" {
		t.Errorf("LookupSeat() = %q, %v", id, ok)
	}
	if _, ok := c.Lookup(36, "1"); ok {
		t.Error("Lookup() found seat in empty room")
	}
	if room := c.Room(36); room == nil || len(room) != 0 {
		t.Errorf("Room(36) = %v, want empty map", room)
	}
}

func TestCacheConcurrentReaders(t *testing.T) {
	c := NewCache([]int{1}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				for range c.Room(1) {
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		c.Merge(1, map[string]int64{"a": int64(j)})
	}
	wg.Wait()
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seat_map.json")
	fs := FileStore{Path: path}

	m, err := fs.Load()
	if err != nil || len(m) != 0 {
		t.Fatalf("Load(missing) = %v, %v", m, err)
	}
	if err := fs.Save(Map{31: {"259": 9259}}); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !bytes.Contains(raw, []byte(`"31"`)) || !bytes.Contains(raw, []byte(`"259": 9259`)) {
		t.Errorf("file = %s", raw)
	}
	m, err = fs.Load()
	if err != nil || m[31]["259"] != 9259 {
		t.Errorf("Load() = %v, %v", m, err)
	}
}

type memStore struct {
	saved Map
	err   error
}

func (m *memStore) Load() (Map, error) { return Map{}, nil }
func (m *memStore) Save(v Map) error   { m.saved = v; return m.err }

func newRefresher(t *testing.T, srv *platformtest.Server, ps ...prefs.Preference) (*Refresher, *memStore) {
	t.Helper()
	pol := retry.Default()
	pol.Sleep = func(context.Context, time.Duration) error { return nil }
	f := platform.NewFactory(platform.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	mgr := session.NewManager(f, session.NewMemoryStore(), session.Options{
		HashKey:  bytes.Repeat([]byte{1}, 32),
		BlockKey: bytes.Repeat([]byte{2}, 32),
		Retry:    pol,
	})
	cat := config.DefaultCatalog()
	store := &memStore{}
	return &Refresher{
		Cache:    NewCache(cat.RoomIDs(), nil),
		Store:    store,
		Prefs:    prefs.NewMemStore(ps...),
		Sessions: mgr,
		Catalog:  cat,
		Retry:    pol,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local) },
	}, store
}

func TestRefreshFallsBackToNextAccount(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	srv.Account("bad", "right", "")
	srv.Account("good", "pw", "uid-good")

	r, store := newRefresher(t, srv,
		prefs.Preference{UserID: "a", AccountID: "bad", AccountSecret: "wrong", Enabled: true},
		prefs.Preference{UserID: "b", AccountID: "good", AccountSecret: "pw", Enabled: true},
	)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	for _, room := range r.Catalog.RoomIDs() {
		got := r.Cache.Room(room)
		if got["17"] != 9001 || got["259"] != 9259 || got["261"] != 9261 {
			t.Errorf("room %d = %v", room, got)
		}
	}
	if len(store.saved) != 4 {
		t.Errorf("saved %d rooms, want 4", len(store.saved))
	}
	if got := srv.Hits(platform.PathSearch); got != 4 {
		t.Errorf("search calls = %d, want 4", got)
	}
}

func TestRefreshNoSession(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	srv.Account("bad", "right", "")

	r, store := newRefresher(t, srv,
		prefs.Preference{UserID: "a", AccountID: "bad", AccountSecret: "wrong", Enabled: true},
		prefs.Preference{UserID: "c", AccountID: "off", AccountSecret: "x", Enabled: false},
	)
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Refresh() error = %v, want ErrNoSession", err)
	}
	if store.saved != nil {
		t.Error("map saved despite skipped refresh")
	}
}

func TestRefreshSaveFailureIsLogged(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	r, store := newRefresher(t, srv, prefs.Preference{UserID: "a", AccountID: "x", AccountSecret: "y", Enabled: true})
	store.err = errors.New("disk full")

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(r.Cache.Room(31)) == 0 {
		t.Error("cache not updated")
	}
}

func TestRefreshUsesPlatformTimeZone(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	cst := time.FixedZone("CST", 8*3600)
	r, _ := newRefresher(t, srv, prefs.Preference{UserID: "a", AccountID: "x", AccountSecret: "y", Enabled: true})
	r.Location = cst
	// 21:30 in the platform's zone, read from a host clock in UTC.
	r.Now = func() time.Time { return time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC) }

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	forms := srv.Forms(platform.PathSearch)
	if len(forms) == 0 {
		t.Fatal("no search sent")
	}
	want := strconv.FormatInt(time.Date(2024, 5, 2, 7, 0, 0, 0, cst).Unix(), 10)
	for _, f := range forms {
		if got := f.Get("beginTime"); got != want {
			t.Errorf("search beginTime = %s, want %s (07:00 next day)", got, want)
		}
	}
}

func TestPlaceholderWindow(t *testing.T) {
	h := config.Hours{Open: 7, LatestStart: 19, Close: 22}
	loc := time.FixedZone("CST", 8*3600)
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 1, 10, 30, 0, 0, loc), time.Date(2024, 5, 1, 11, 0, 0, 0, loc)},
		{time.Date(2024, 5, 1, 5, 0, 0, 0, loc), time.Date(2024, 5, 1, 7, 0, 0, 0, loc)},
		{time.Date(2024, 5, 1, 20, 10, 0, 0, loc), time.Date(2024, 5, 2, 7, 0, 0, 0, loc)},
		{time.Date(2024, 5, 1, 18, 5, 0, 0, loc), time.Date(2024, 5, 1, 19, 0, 0, 0, loc)},
		{time.Date(2024, 5, 1, 22, 30, 0, 0, loc), time.Date(2024, 5, 2, 7, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		w := placeholderWindow(tt.now, h)
		if w.Begin != tt.want.Unix() || w.Duration != 3600 {
			t.Errorf("placeholderWindow(%v) = %v, want %v", tt.now, time.Unix(w.Begin, 0).In(loc), tt.want)
		}
	}
}
