package platform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/platform/platformtest"
	"github.com/example/seat-scheduler/internal/status"
)

func newClient(t *testing.T, srv *platformtest.Server) *platform.Client {
	t.Helper()
	return platform.NewFactory(platform.Options{
		BaseURL:    srv.URL,
		CategoryID: "591",
		Timeout:    2 * time.Second,
	}).New()
}

func TestCallClassification(t *testing.T) {
	tests := []struct {
		name string
		resp platformtest.Response
		want status.Code
	}{
		{"ok", platformtest.Response{Body: map[string]any{"CODE": "ok"}}, status.Success},
		{"non 200", platformtest.Response{Status: http.StatusBadGateway}, status.StatusCodeError},
		{"malformed body", platformtest.Response{Raw: "<html>maintenance</html>"}, status.JSONDecodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := platformtest.New()
			defer srv.Close()
			srv.Script(platform.PathCancel, tt.resp)

			var out map[string]any
			got := newClient(t, srv).Call(context.Background(), platform.Request{Endpoint: platform.PathCancel, Method: http.MethodPost}, &out)
			if got != tt.want {
				t.Errorf("Call() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCallTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	c := platform.NewFactory(platform.Options{BaseURL: slow.URL, Timeout: 50 * time.Millisecond}).New()
	if got := c.Call(context.Background(), platform.Request{Endpoint: "/"}, nil); got != status.TimeOut {
		t.Errorf("Call() = %v, want time_out", got)
	}
}

func TestCallUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := platform.NewFactory(platform.Options{BaseURL: url, Timeout: time.Second}).New()
	if got := c.Call(context.Background(), platform.Request{Endpoint: "/"}, nil); got != status.UnknownError {
		t.Errorf("Call() = %v, want unknown_error", got)
	}
}

func TestLogin(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	srv.Account("20240001", "right", "uid-7")

	c := newClient(t, srv)
	if got := c.Login(context.Background(), "20240001", "wrong"); got != status.LoginFailed {
		t.Fatalf("Login(wrong) = %v, want login_failed", got)
	}
	if got := c.Login(context.Background(), "20240001", "right"); got != status.Success {
		t.Fatalf("Login(right) = %v, want success", got)
	}
	if c.UID() != "uid-7" {
		t.Errorf("UID() = %q, want uid-7", c.UID())
	}
	if len(c.Cookies()) == 0 {
		t.Error("expected session cookie in jar")
	}
}

func TestSearchSeats(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	c := newClient(t, srv)

	res, code := c.SearchSeats(context.Background(), 36, platform.Window{Begin: 1700000000, Duration: 36000})
	if code != status.Success {
		t.Fatalf("SearchSeats() = %v", code)
	}
	if res.Adjustment.Adjusted {
		t.Error("unexpected adjustment")
	}
	if len(res.Availability.BestPair) != 1 || res.Availability.BestPair[0].ID != "9001" {
		t.Errorf("best pair = %+v", res.Availability.BestPair)
	}
	if len(res.Availability.POIs) != 3 || res.Availability.POIs[1].State != 2 {
		t.Errorf("POIs = %+v", res.Availability.POIs)
	}
	form := srv.Forms(platform.PathSearch)[0]
	if form.Get("space_category[content_id]") != "36" || form.Get("space_category[category_id]") != "591" || form.Get("num") != "1" {
		t.Errorf("search form = %v", form)
	}

	srv.SetSearch(platformtest.SearchBody(true, 1700003600, 32400))
	res, _ = c.SearchSeats(context.Background(), 36, platform.Window{Begin: 1700000000, Duration: 36000})
	if !res.Adjustment.Adjusted || res.Adjustment.Begin != 1700003600 || res.Adjustment.Duration != 32400 {
		t.Errorf("adjustment = %+v", res.Adjustment)
	}

	for _, body := range []string{`{"content":{}}`, `{"data":null}`, `{"data":[]}`} {
		srv.Script(platform.PathSearch, platformtest.Response{Raw: body})
		if _, code := c.SearchSeats(context.Background(), 36, platform.Window{}); code != status.NoSeat {
			t.Errorf("SearchSeats(%s) = %v, want no_seat", body, code)
		}
	}
}

func TestBookSeat(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want status.Code
	}{
		{"ok", map[string]any{"CODE": "ok"}, status.Success},
		{"already booked", map[string]any{"CODE": "ParamError", "MESSAGE": "您已有预约，不可重复预约"}, status.AlreadyBooked},
		{"param error", map[string]any{"CODE": "ParamError", "MESSAGE": "时间不合法"}, status.ParamError},
		{"other", map[string]any{"CODE": "SystemBusy"}, status.UnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := platformtest.New()
			defer srv.Close()
			srv.Script(platform.PathBook, platformtest.Response{Body: tt.body})
			c := newClient(t, srv)
			c.SetUID("uid-1")
			if got := c.BookSeat(context.Background(), "9001", platform.Window{Begin: 1, Duration: 2}); got != tt.want {
				t.Errorf("BookSeat() = %v, want %v", got, tt.want)
			}
			if got := srv.Forms(platform.PathBook)[0].Get("seatBookers[0]"); got != "uid-1" {
				t.Errorf("seatBookers[0] = %q", got)
			}
		})
	}
}

func TestBookingLifecycle(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	if code := c.BookSeat(ctx, "9259", platform.Window{Begin: 1700000000, Duration: 10800}); code != status.Success {
		t.Fatalf("BookSeat() = %v", code)
	}
	recs, code := c.Bookings(ctx)
	if code != status.Success || len(recs) != 1 {
		t.Fatalf("Bookings() = %v, %d records", code, len(recs))
	}
	r := recs[0]
	if !r.Pending() || r.SeatNum != "259" || r.Duration.Int() != 10800 {
		t.Errorf("record = %+v", r)
	}
	if got := r.End().Sub(r.Start()); got != 3*time.Hour {
		t.Errorf("window = %v", got)
	}

	if code, _ := c.CheckIn(ctx, r.ID.String()); code != status.Success {
		t.Fatalf("CheckIn() = %v", code)
	}
	code, msg := c.CheckIn(ctx, r.ID.String())
	if code != status.UnknownError || msg == "" {
		t.Errorf("second CheckIn() = %v %q", code, msg)
	}
	if code := c.Cancel(ctx, r.ID.String()); code != status.UnknownError {
		t.Errorf("Cancel(active) = %v, want unknown_error", code)
	}
	if code := c.CheckOut(ctx, r.ID.String()); code != status.Success {
		t.Errorf("CheckOut() = %v", code)
	}
	recs, _ = c.Bookings(ctx)
	if recs[0].StatusLabel() != "completed (checked out)" {
		t.Errorf("label = %q", recs[0].StatusLabel())
	}
}

func TestRestoreCookies(t *testing.T) {
	srv := platformtest.New()
	defer srv.Close()
	f := platform.NewFactory(platform.Options{BaseURL: srv.URL})

	a := f.New()
	if code := a.Login(context.Background(), "x", "y"); code != status.Success {
		t.Fatal(code)
	}
	b := f.New()
	b.RestoreCookies(a.Cookies())
	if len(b.Cookies()) != len(a.Cookies()) {
		t.Errorf("restored %d cookies, want %d", len(b.Cookies()), len(a.Cookies()))
	}
}

func TestRestoreCookiesKeepsPath(t *testing.T) {
	var mu sync.Mutex
	sent := map[string][]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/1/set" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "seat_token", Value: "t1", Path: "/Seat/Index"})
			http.SetCookie(w, &http.Cookie{Name: "lang", Value: "zh"})
		}
		var names []string
		for _, c := range r.Cookies() {
			names = append(names, c.Name)
		}
		sort.Strings(names)
		mu.Lock()
		sent[r.URL.Path] = names
		mu.Unlock()
		_, _ = w.Write([]byte(`{"CODE":"ok"}`))
	}))
	defer srv.Close()
	f := platform.NewFactory(platform.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	ctx := context.Background()

	a := f.New()
	if code := a.Call(ctx, platform.Request{Endpoint: "/api/1/set"}, nil); code != status.Success {
		t.Fatal(code)
	}
	paths := map[string]string{}
	for _, c := range a.Cookies() {
		paths[c.Name] = c.Path
	}
	for name, want := range map[string]string{"sid": "/", "seat_token": "/Seat/Index", "lang": "/api/1"} {
		if paths[name] != want {
			t.Errorf("cookie %s path = %q, want %q", name, paths[name], want)
		}
	}

	b := f.New()
	b.RestoreCookies(a.Cookies())
	tests := []struct {
		endpoint string
		path     string
		want     string
	}{
		{platform.PathCheckIn, "/Seat/Index/checkIn", "seat_token,sid"},
		{"/api/1/other", "/api/1/other", "lang,sid"},
		{"/other", "/other", "sid"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if code := b.Call(ctx, platform.Request{Endpoint: tt.endpoint}, nil); code != status.Success {
				t.Fatal(code)
			}
			mu.Lock()
			got := strings.Join(sent[tt.path], ",")
			mu.Unlock()
			if got != tt.want {
				t.Errorf("cookies sent to %s = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
