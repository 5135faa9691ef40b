package platform

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type cookieKey struct{ name, path string }

// pathJar remembers the path each cookie was set for. The wrapped jar only
// hands back name and value, and only for URLs the cookie's path covers.
type pathJar struct {
	http.CookieJar

	mu   sync.Mutex
	keys map[cookieKey]struct{}
}

func newPathJar(inner http.CookieJar) *pathJar {
	return &pathJar{CookieJar: inner, keys: map[cookieKey]struct{}{}}
}

func (j *pathJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	now := time.Now()
	j.mu.Lock()
	for _, c := range cookies {
		k := cookieKey{c.Name, cookiePath(u, c)}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now)) {
			delete(j.keys, k)
			continue
		}
		j.keys[k] = struct{}{}
	}
	j.mu.Unlock()
	j.CookieJar.SetCookies(u, cookies)
}

// export returns the live cookies under base with their paths filled in.
func (j *pathJar) export(base *url.URL) []*http.Cookie {
	j.mu.Lock()
	keys := make([]cookieKey, 0, len(j.keys))
	for k := range j.keys {
		keys = append(keys, k)
	}
	j.mu.Unlock()
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].path != keys[b].path {
			return keys[a].path < keys[b].path
		}
		return keys[a].name < keys[b].name
	})

	var out []*http.Cookie
	for _, k := range keys {
		// The jar lists the longest matching path first, so the first
		// cookie with this name is the one set for k.path.
		for _, c := range j.CookieJar.Cookies(base.ResolveReference(&url.URL{Path: k.path})) {
			if c.Name == k.name {
				out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: k.path})
				break
			}
		}
	}
	return out
}

// restore sets each cookie on the URL its path names.
func (j *pathJar) restore(base *url.URL, cookies []*http.Cookie) {
	byPath := map[string][]*http.Cookie{}
	for _, c := range cookies {
		p := c.Path
		if p == "" || p[0] != '/' {
			p = "/"
		}
		byPath[p] = append(byPath[p], &http.Cookie{Name: c.Name, Value: c.Value, Path: p})
	}
	for p, cs := range byPath {
		j.SetCookies(base.ResolveReference(&url.URL{Path: p}), cs)
	}
}

// cookiePath is the cookie's Path attribute, or the default path of the URL
// that set it.
func cookiePath(u *url.URL, c *http.Cookie) string {
	if c.Path != "" && c.Path[0] == '/' {
		return c.Path
	}
	p := u.Path
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
