package storage

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// DefaultThreadCookie is the cookie carrying the thread id.
const DefaultThreadCookie = "chatThreadID"

// Cookies is the single-cookie surface the session needs.
type Cookies interface {
	Get(name string) (string, bool)
	Set(name string, value string)
	Delete(name string)
}

// JarCookies stores cookies in an http.CookieJar scoped to the page URL with
// path "/". Installing Jar() on the HTTP client makes the cookie travel with
// requests to the same site.
type JarCookies struct {
	jar  http.CookieJar
	page *url.URL
}

var _ Cookies = &JarCookies{}

func NewJarCookies(pageURL string) (*JarCookies, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.Wrap(err, "cookies: parse page url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("cookies: page url %q must be absolute", pageURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "cookies: create jar")
	}
	return &JarCookies{jar: jar, page: u}, nil
}

// Jar returns the underlying jar.
func (c *JarCookies) Jar() http.CookieJar { return c.jar }

func (c *JarCookies) Get(name string) (string, bool) {
	for _, ck := range c.jar.Cookies(c.page) {
		if ck.Name != name {
			continue
		}
		v, err := url.PathUnescape(ck.Value)
		if err != nil {
			log.Warn().Err(err).Str("component", "cookies").Str("cookie", name).Msg("cookie value is not escaped")
			return ck.Value, true
		}
		return v, true
	}
	return "", false
}

// Set writes a session cookie. Empty values are ignored. Values are
// percent-encoded the way browsers' encodeURIComponent does (space is %20).
func (c *JarCookies) Set(name string, value string) {
	if value == "" {
		return
	}
	c.jar.SetCookies(c.page, []*http.Cookie{{
		Name:  name,
		Value: url.PathEscape(value),
		Path:  "/",
	}})
}

func (c *JarCookies) Delete(name string) {
	c.jar.SetCookies(c.page, []*http.Cookie{{
		Name:   name,
		Path:   "/",
		MaxAge: -1,
	}})
}

// MemoryCookies is a map-backed Cookies.
type MemoryCookies struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Cookies = &MemoryCookies{}

func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{values: map[string]string{}}
}

func (c *MemoryCookies) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name]
	return v, ok
}

func (c *MemoryCookies) Set(name string, value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

func (c *MemoryCookies) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, name)
}
