// Package session establishes authenticated platform clients, reusing stored
// cookies while they are valid and logging in again otherwise.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog/log"

	"github.com/example/seat-scheduler/internal/platform"
	"github.com/example/seat-scheduler/internal/prefs"
	"github.com/example/seat-scheduler/internal/retry"
	"github.com/example/seat-scheduler/internal/status"
)

// ErrSessionFailed means no authenticated session could be established.
var ErrSessionFailed = errors.New("session: login failed")

const (
	DefaultValidity  = 72 * time.Hour
	maxLoginFailures = 3
	cookieName       = "platform-session"
)

// Session is an authenticated client bound to one preference.
type Session struct {
	Client     *platform.Client
	Preference prefs.Preference
	Reused     bool
}

func (s *Session) UID() string { return s.Client.UID() }

type storedCookie struct {
	Name  string `json:"n"`
	Value string `json:"v"`
	Path  string `json:"p,omitempty"`
}

type Manager struct {
	factory  *platform.Factory
	store    CookieStore
	codec    *securecookie.SecureCookie
	retry    retry.Policy
	validity time.Duration
	now      func() time.Time
}

type Options struct {
	HashKey  []byte
	BlockKey []byte
	Validity time.Duration
	Retry    retry.Policy
	Now      func() time.Time
}

func NewManager(f *platform.Factory, store CookieStore, o Options) *Manager {
	if o.Validity <= 0 {
		o.Validity = DefaultValidity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Retry.Base == 0 && o.Retry.MaxPenalty == 0 {
		o.Retry = retry.Default()
	}
	codec := securecookie.New(o.HashKey, o.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int((o.Validity + time.Hour) / time.Second))
	return &Manager{factory: f, store: store, codec: codec, retry: o.Retry, validity: o.Validity, now: o.Now}
}

// EnsureSession returns a client for p's account, restoring a stored
// credential when one is unexpired and logging in otherwise.
func (m *Manager) EnsureSession(ctx context.Context, p prefs.Preference) (*Session, error) {
	client := m.factory.New()
	logger := log.With().Str("uid", p.AccountID).Logger()

	cred, err := m.store.Get(ctx, p.AccountID)
	switch {
	case err == nil && !cred.IsExpired(m.now()):
		cookies, derr := m.decode(cred.Cookie)
		if derr == nil {
			client.RestoreCookies(cookies)
			client.SetUID(cred.RemoteUID)
			return &Session{Client: client, Preference: p, Reused: true}, nil
		}
		logger.Warn().Err(derr).Msg("stored cookie unreadable, logging in again")
	case err != nil && !errors.Is(err, ErrNotFound):
		logger.Warn().Err(err).Msg("cookie store lookup failed")
	}

	code := m.retry.Loop(ctx, retry.Loop{
		Name:        "login",
		MaxFailures: maxLoginFailures,
		Op: func(ctx context.Context) status.Code {
			return client.Login(ctx, p.AccountID, p.AccountSecret)
		},
		OnRetry: func(c status.Code, _ int) {
			if c == status.ProxyError {
				logger.Warn().Msg("proxy error during login, switching to fallback proxy")
				client.UseFallbackProxy()
			}
		},
	})
	if code != status.Success {
		logger.Error().Stringer("status", code).Msg("login failed")
		return nil, fmt.Errorf("%w: account %s: %s", ErrSessionFailed, p.AccountID, code)
	}
	logger.Info().Msg("login success")

	blob, err := m.encode(client.Cookies())
	if err != nil {
		logger.Error().Err(err).Msg("encode cookie failed")
	} else if err := m.store.Set(ctx, Credential{
		OwnerKey:  p.AccountID,
		Cookie:    blob,
		RemoteUID: client.UID(),
		ExpiresAt: m.now().Add(m.validity),
	}); err != nil {
		logger.Error().Err(err).Msg("persist cookie failed")
	}
	return &Session{Client: client, Preference: p}, nil
}

func (m *Manager) encode(cookies []*http.Cookie) (string, error) {
	out := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, storedCookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return m.codec.Encode(cookieName, out)
}

func (m *Manager) decode(blob string) ([]*http.Cookie, error) {
	var in []storedCookie
	if err := m.codec.Decode(cookieName, blob, &in); err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return out, nil
}
