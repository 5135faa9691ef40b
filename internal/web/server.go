// Package web serves the operational HTTP endpoint that runs beside the
// scheduler: a liveness check and a view of the persisted jobs.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/example/seat-scheduler/internal/jobs"
)

// Jobs is the scheduler surface the server exposes.
type Jobs interface {
	List(ctx context.Context) ([]jobs.Task, error)
	Get(ctx context.Context, id string) (jobs.Task, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
}

type Server struct {
	Jobs Jobs
	// Token, when set, must be sent as "Authorization: Bearer <token>" on
	// every /jobs route.
	Token string
}

type taskView struct {
	ID           string     `json:"id"`
	Kind         jobs.Kind  `json:"kind"`
	Cron         string     `json:"cron,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	PreferenceID int64      `json:"preference_id,omitempty"`
	BookingID    string     `json:"booking_id,omitempty"`
	Paused       bool       `json:"paused"`
}

func viewOf(t jobs.Task) taskView {
	v := taskView{
		ID:           t.ID,
		Kind:         t.Kind,
		Cron:         t.Cron,
		PreferenceID: t.PreferenceID,
		BookingID:    t.BookingID,
		Paused:       t.Paused,
	}
	if !t.RunAt.IsZero() {
		at := t.RunAt
		v.NextRun = &at
	}
	return v
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/pause", s.handleToggle(s.Jobs.Pause))
		r.Post("/{id}/resume", s.handleToggle(s.Jobs.Resume))
	})
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := s.Jobs.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]taskView, 0, len(all))
	for _, t := range all {
		out = append(out, viewOf(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleToggle(fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		s.handleGet(w, r)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="seatsched"`)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	log.Error().Err(err).Str("request_id", chimw.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		log.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Loopback reports whether addr only listens on the local host.
func Loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start serves h on addr until ctx is cancelled.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("ops endpoint listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
