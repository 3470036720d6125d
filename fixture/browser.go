package fixture

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Cookie is a browser-shaped cookie record. It preserves the attributes a
// Set-Cookie response carries so the browser context receives the session
// cookie exactly as the application issued it.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// BrowserContext is the sink provisioned session cookies get installed
// into. Browser automation drivers adapt their cookie API to this single
// method; tests that only need an HTTP client can use CookieJarContext.
type BrowserContext interface {
	AddCookies(ctx context.Context, cookies []Cookie) error
}

// CookieJarContext is a BrowserContext backed by a net/http cookie jar, for
// API-level tests that have no real browser.
type CookieJarContext struct {
	jar *cookiejar.Jar
}

func NewCookieJarContext() (*CookieJarContext, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create cookie jar")
	}
	return &CookieJarContext{jar: jar}, nil
}

// Jar exposes the underlying jar so callers can wire it into an
// http.Client.
func (c *CookieJarContext) Jar() http.CookieJar {
	return c.jar
}

func (c *CookieJarContext) AddCookies(_ context.Context, cookies []Cookie) error {
	byOrigin := map[string][]*http.Cookie{}

	for _, ck := range cookies {
		origin := originFor(ck)
		byOrigin[origin] = append(byOrigin[origin], &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HttpOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
		})
	}

	for origin, group := range byOrigin {
		u, err := url.Parse(origin)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid cookie origin").
				WithMetadata(map[string]any{
					"origin": origin,
				})
		}
		c.jar.SetCookies(u, group)
	}

	return nil
}

func originFor(ck Cookie) string {
	scheme := "http"
	if ck.Secure {
		scheme = "https"
	}
	return scheme + "://" + ck.Domain
}
