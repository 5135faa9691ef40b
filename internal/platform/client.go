// Package platform talks to the study-room booking platform. Every call is
// reduced to a status.Code; transport errors never cross this boundary.
package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/seat-scheduler/internal/status"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.60 Safari/537.36"

	DefaultBaseURL = "https://jxnu.huitu.zhishulib.com"
	DefaultTimeout = 5 * time.Second
)

// Endpoint paths relative to the base URL.
const (
	PathLogin    = "/api/1/login"
	PathSearch   = "/Seat/Index/searchSeats?LAB_JSON=1"
	PathBook     = "/Seat/Index/bookSeats?LAB_JSON=1"
	PathBookings = "/Seat/Index/myBookingList?LAB_JSON=1"
	PathCancel   = "/Seat/Index/cancelBooking?LAB_JSON=1"
	PathCheckIn  = "/Seat/Index/checkIn?LAB_JSON=1"
	PathCheckOut = "/Seat/Index/checkOut?LAB_JSON=1"
)

// Options configures every client created by a Factory.
type Options struct {
	BaseURL       string
	CategoryID    string
	OrgID         string
	Timeout       time.Duration
	Proxy         string
	FallbackProxy string

	// Limiter is shared by all clients; nil disables rate limiting.
	Limiter *rate.Limiter
}

// Factory builds per-account clients with shared options.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Factory{opts: opts}
}

func (f *Factory) Options() Options { return f.opts }

// New returns a fresh client with its own cookie jar.
func (f *Factory) New() *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{opts: f.opts, jar: newPathJar(jar)}
	c.setProxy(f.opts.Proxy)
	return c
}

// Client is bound to one platform account. It is not safe for concurrent use
// by multiple workflows, but cookie and proxy access are synchronized.
type Client struct {
	opts Options
	jar  *pathJar

	mu  sync.Mutex
	hc  *http.Client
	uid string
}

// Request is a single platform call. Form and JSON are mutually exclusive;
// JSON bodies are sent without a content type like the vendor web client.
type Request struct {
	Endpoint string
	Method   string
	Form     url.Values
	JSON     any
}

func (c *Client) setProxy(raw string) {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: c.opts.Timeout,
		DialContext:         (&net.Dialer{Timeout: c.opts.Timeout}).DialContext,
	}
	if raw != "" {
		if u, err := url.Parse(raw); err == nil {
			tr.Proxy = http.ProxyURL(u)
		}
	}
	c.mu.Lock()
	c.hc = &http.Client{Timeout: c.opts.Timeout, Jar: c.jar, Transport: tr}
	c.mu.Unlock()
}

// UseFallbackProxy routes subsequent calls through the configured fallback
// proxy. It is a no-op when none is configured.
func (c *Client) UseFallbackProxy() {
	if c.opts.FallbackProxy == "" {
		return
	}
	c.setProxy(c.opts.FallbackProxy)
}

func (c *Client) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

func (c *Client) SetUID(uid string) {
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
}

func (c *Client) baseURL() *url.URL {
	u, _ := url.Parse(c.opts.BaseURL + "/")
	return u
}

// Cookies returns the cookies the jar holds for the platform.
// Each cookie carries the path it was set for.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.export(c.baseURL())
}

// RestoreCookies loads previously exported cookies into the jar, each on its
// own path.
func (c *Client) RestoreCookies(cookies []*http.Cookie) {
	c.jar.restore(c.baseURL(), cookies)
}

// Call performs r and decodes the JSON body into out.
func (c *Client) Call(ctx context.Context, r Request, out any) status.Code {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return status.TimeOut
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	contentType := ""
	switch {
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return status.UnknownError
		}
		body = bytes.NewReader(b)
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+r.Endpoint, body)
	if err != nil {
		return status.UnknownError
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.opts.BaseURL+"/")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.mu.Lock()
	hc := c.hc
	c.mu.Unlock()

	res, err := hc.Do(req)
	if err != nil {
		return classify(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return status.StatusCodeError
	}
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return classify(err)
	}
	if out == nil {
		return status.Success
	}
	if err := json.Unmarshal(b, out); err != nil {
		return status.JSONDecodeError
	}
	return status.Success
}

// classify maps a transport error onto a status code.
func classify(err error) status.Code {
	if errors.Is(err, context.DeadlineExceeded) {
		return status.TimeOut
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return status.TimeOut
	}

	var (
		certErr    *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		recordErr  tls.RecordHeaderError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr),
		errors.As(err, &recordErr), errors.As(err, &invalidErr):
		return status.ProxyError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return status.ProxyError
	}
	msg := err.Error()
	if strings.Contains(msg, "tls:") || strings.Contains(msg, "proxyconnect") {
		return status.ProxyError
	}
	return status.UnknownError
}
