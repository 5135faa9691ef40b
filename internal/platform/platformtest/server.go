// Package platformtest provides an in-process fake of the booking platform
// for tests. It keeps a small booking ledger so multi-step workflows behave
// like the real service, and allows per-endpoint scripted answers.
package platformtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/example/seat-scheduler/internal/platform"
)

// Response is a scripted answer. Raw wins over Body when set.
type Response struct {
	Status int
	Body   any
	Raw    string
}

// Booking is a ledger entry of the fake.
type Booking struct {
	ID       int
	Status   string
	Time     int64
	Duration int64
	SeatNum  string
	RoomName string
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	passwords map[string]string
	uids      map[string]string
	scripts   map[string][]Response
	hits      map[string]int
	forms     map[string][]url.Values
	bookings  []Booking
	nextID    int

	// Search is the default seat search answer.
	Search any
	// RoomName is stamped onto ledger entries created by a booking.
	RoomName string
}

// New starts a fake that accepts any login and offers seat 17 (id 9001) as
// recommendation and seats 259 and 261 as free POIs.
func New() *Server {
	s := &Server{
		passwords: map[string]string{},
		uids:      map[string]string{},
		scripts:   map[string][]Response{},
		hits:      map[string]int{},
		forms:     map[string][]url.Values{},
		nextID:    1000,
		RoomName:  "Second floor south",
		Search:    SearchBody(false, 0, 0),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SearchBody builds a search answer with the standard seat set.
func SearchBody(adjust bool, adjustDate, adjustTime int64) map[string]any {
	return map[string]any{
		"content": map[string]any{
			"children": []any{
				map[string]any{},
				map[string]any{"ifAdjust": adjust, "adjustDate": adjustDate, "adjustTime": adjustTime},
			},
		},
		"data": map[string]any{
			"bestPairSeats": map[string]any{"seats": []any{map[string]any{"id": 9001, "title": "17"}}},
			"POIs": []any{
				map[string]any{"id": 9259, "title": "259", "state": 0},
				map[string]any{"id": 9261, "title": "261", "state": 2},
				map[string]any{"id": 9300, "title": "300", "state": 1},
			},
		},
	}
}

// SetSearch replaces the default seat search answer.
func (s *Server) SetSearch(body any) {
	s.mu.Lock()
	s.Search = body
	s.mu.Unlock()
}

// Account restricts login to the given password for account and assigns uid.
func (s *Server) Account(account, password, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[account] = password
	s.uids[account] = uid
}

// Script queues answers for path; they are served in order before the
// default behaviour resumes.
func (s *Server) Script(path string, rs ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = append(s.scripts[path], rs...)
}

func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Forms returns the form bodies received on path.
func (s *Server) Forms(path string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.forms[path]...)
}

// AddBooking seeds the ledger and returns the booking id.
func (s *Server) AddBooking(b Booking) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextID++
		b.ID = s.nextID
	}
	s.bookings = append(s.bookings, b)
	return b.ID
}

func (s *Server) Booking(id int) (Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return Booking{}, false
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}

	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	s.mu.Lock()
	s.hits[key]++
	s.forms[key] = append(s.forms[key], form)
	var scripted *Response
	if q := s.scripts[key]; len(q) > 0 {
		scripted = &q[0]
		s.scripts[key] = q[1:]
	}
	s.mu.Unlock()

	if scripted != nil {
		write(w, *scripted)
		return
	}

	switch key {
	case platform.PathLogin:
		s.login(w, r, raw)
	case platform.PathSearch:
		s.mu.Lock()
		body := s.Search
		s.mu.Unlock()
		write(w, Response{Body: body})
	case platform.PathBook:
		s.book(w, form)
	case platform.PathBookings:
		s.list(w)
	case platform.PathCancel:
		s.transition(w, form, "0", "4", false)
	case platform.PathCheckIn:
		s.transition(w, form, "0", "1", true)
	case platform.PathCheckOut:
		s.transition(w, form, "1", "3", false)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, raw []byte) {
	var body struct {
		LoginName string `json:"login_name"`
		Password  string `json:"password"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		write(w, Response{Status: http.StatusBadRequest})
		return
	}
	s.mu.Lock()
	want, restricted := s.passwords[body.LoginName]
	uid := s.uids[body.LoginName]
	s.mu.Unlock()
	if restricted && want != body.Password {
		write(w, Response{Body: map[string]any{"code": 1, "msg": "wrong password"}})
		return
	}
	if uid == "" {
		uid = "u-" + body.LoginName
	}
	http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-" + body.LoginName, Path: "/"})
	write(w, Response{Body: map[string]any{
		"mobile":         "13800000000",
		"org_score_info": map[string]any{"uid": uid},
	}})
}

func (s *Server) book(w http.ResponseWriter, form url.Values) {
	begin, _ := strconv.ParseInt(form.Get("beginTime"), 10, 64)
	dur, _ := strconv.ParseInt(form.Get("duration"), 10, 64)

	s.mu.Lock()
	s.nextID++
	seatID := form.Get("seats[0]")
	s.bookings = append(s.bookings, Booking{
		ID:       s.nextID,
		Status:   "0",
		Time:     begin,
		Duration: dur,
		SeatNum:  seatLabel(seatID),
		RoomName: s.RoomName,
	})
	s.mu.Unlock()
	write(w, Response{Body: map[string]any{"CODE": "ok", "MESSAGE": ""}})
}

// seatLabel maps the fake's seat ids back to their printed labels.
func seatLabel(id string) string {
	switch id {
	case "9001":
		return "17"
	case "9259":
		return "259"
	case "9261":
		return "261"
	}
	return id
}

func (s *Server) list(w http.ResponseWriter) {
	s.mu.Lock()
	items := make([]any, 0, len(s.bookings))
	for i := len(s.bookings) - 1; i >= 0; i-- {
		b := s.bookings[i]
		items = append(items, map[string]any{
			"id":       strconv.Itoa(b.ID),
			"status":   b.Status,
			"time":     strconv.FormatInt(b.Time, 10),
			"duration": strconv.FormatInt(b.Duration, 10),
			"seatNum":  b.SeatNum,
			"roomName": b.RoomName,
		})
	}
	s.mu.Unlock()
	write(w, Response{Body: map[string]any{"content": map[string]any{"defaultItems": items}}})
}

func (s *Server) transition(w http.ResponseWriter, form url.Values, from, to string, checkin bool) {
	id, _ := strconv.Atoi(form.Get("bookingId"))
	ok := false
	s.mu.Lock()
	for i := range s.bookings {
		if s.bookings[i].ID == id && s.bookings[i].Status == from {
			s.bookings[i].Status = to
			ok = true
		}
	}
	s.mu.Unlock()

	if checkin {
		if ok {
			write(w, Response{Body: map[string]any{"DATA": map[string]any{"result": "success"}}})
		} else {
			write(w, Response{Body: map[string]any{"DATA": map[string]any{"result": "fail", "msg": "not in check-in window"}}})
		}
		return
	}
	if ok {
		write(w, Response{Body: map[string]any{"CODE": "ok"}})
	} else {
		write(w, Response{Body: map[string]any{"CODE": "error", "MESSAGE": "invalid state"}})
	}
}

func write(w http.ResponseWriter, r Response) {
	code := r.Status
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	switch {
	case r.Raw != "":
		_, _ = io.WriteString(w, r.Raw)
	case r.Body != nil:
		_ = json.NewEncoder(w).Encode(r.Body)
	}
}
