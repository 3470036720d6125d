// Package fixture is the client half of the test data protocol. It wraps a
// target application's provisioning endpoints in a test-scoped helper that
// tracks every user it creates and tears them all down when the test ends.
package fixture

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	defaultBasePath    = "/test-data"
	secretHeader       = "X-Test-Data-Secret"
	defaultEmailDomain = "test.local"
	defaultHTTPTimeout = 15 * time.Second
)

// Fixture provisions users against a running application and guarantees
// their removal at test scope exit via testing.TB cleanup hooks.
type Fixture struct {
	t           testing.TB
	client      *http.Client
	baseURL     string
	basePath    string
	secret      string
	domain      string
	emailDomain string
	browser     BrowserContext

	mu      sync.Mutex
	tracked []string
}

type Option func(*Fixture)

func WithSecret(secret string) Option {
	return func(f *Fixture) {
		f.secret = secret
	}
}

func WithBasePath(basePath string) Option {
	return func(f *Fixture) {
		if basePath != "" {
			f.basePath = basePath
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fixture) {
		if client != nil {
			f.client = client
		}
	}
}

// WithEmailDomain changes the domain used for generated emails.
func WithEmailDomain(domain string) Option {
	return func(f *Fixture) {
		if domain != "" {
			f.emailDomain = domain
		}
	}
}

// WithBrowserContext routes provisioned session cookies into the given
// browser context instead of the default in-process cookie jar.
func WithBrowserContext(browser BrowserContext) Option {
	return func(f *Fixture) {
		if browser != nil {
			f.browser = browser
		}
	}
}

// New builds a fixture bound to the given test. Close is registered as a
// cleanup hook, so callers normally never invoke it themselves.
func New(t testing.TB, baseURL string, opts ...Option) (*Fixture, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, goerrors.New("invalid base URL", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{
				"base_url": baseURL,
			})
	}

	f := &Fixture{
		t:           t,
		baseURL:     strings.TrimRight(baseURL, "/"),
		basePath:    defaultBasePath,
		domain:      u.Hostname(),
		emailDomain: defaultEmailDomain,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.browser == nil {
		jarCtx, err := NewCookieJarContext()
		if err != nil {
			return nil, err
		}
		f.browser = jarCtx

		if f.client == nil {
			f.client = &http.Client{
				Timeout: defaultHTTPTimeout,
				Jar:     jarCtx.Jar(),
			}
		}
	}

	if f.client == nil {
		f.client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	t.Cleanup(f.Close)

	return f, nil
}

// TestUser is the client-side view of a provisioned user.
type TestUser struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	Session SessionInfo    `json:"session"`
	Plugins map[string]any `json:"plugins"`
}

// SessionInfo mirrors the session identifiers returned by the server.
type SessionInfo struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// CreateUserOptions shapes a provisioning request. The zero value is fully
// usable: a random email is generated and all other fields stay unset.
type CreateUserOptions struct {
	Email      string                    `json:"email"`
	Name       string                    `json:"name,omitempty"`
	Password   string                    `json:"password,omitempty"`
	Phone      string                    `json:"phone,omitempty"`
	PluginData map[string]map[string]any `json:"pluginData,omitempty"`
}

type CreateUserOption func(*CreateUserOptions)

func WithEmail(email string) CreateUserOption {
	return func(o *CreateUserOptions) {
		o.Email = email
	}
}

func WithName(name string) CreateUserOption {
	return func(o *CreateUserOptions) {
		o.Name = name
	}
}

func WithPassword(password string) CreateUserOption {
	return func(o *CreateUserOptions) {
		o.Password = password
	}
}

func WithPhone(phone string) CreateUserOption {
	return func(o *CreateUserOptions) {
		o.Phone = phone
	}
}

// WithPluginData passes plugin-specific options keyed by plugin ID.
func WithPluginData(pluginID string, data map[string]any) CreateUserOption {
	return func(o *CreateUserOptions) {
		if o.PluginData == nil {
			o.PluginData = map[string]map[string]any{}
		}
		o.PluginData[pluginID] = data
	}
}

type provisionResponse struct {
	User struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
		Name  string    `json:"name"`
	} `json:"user"`
	Session SessionInfo    `json:"session"`
	Plugins map[string]any `json:"plugins"`
}

// CreateUser provisions a user, tracks it for teardown, and installs the
// returned session cookies into the browser context so the next page load
// is already signed in.
func (f *Fixture) CreateUser(ctx context.Context, opts ...CreateUserOption) (*TestUser, error) {
	options := CreateUserOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.Email == "" {
		options.Email = f.randomEmail()
	}

	resp, err := f.do(ctx, http.MethodPost, f.endpoint("/user"), options)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not read provision response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerrors.New("user provisioning failed", goerrors.CategoryOperation).
			WithMetadata(map[string]any{
				"status": resp.StatusCode,
				"body":   string(body),
				"email":  options.Email,
			})
	}

	var payload provisionResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not decode provision response")
	}

	f.track(payload.User.Email)

	if err := f.installCookies(ctx, resp.Cookies()); err != nil {
		return nil, err
	}

	return &TestUser{
		ID:      payload.User.ID.String(),
		Email:   payload.User.Email,
		Name:    payload.User.Name,
		Session: payload.Session,
		Plugins: payload.Plugins,
	}, nil
}

// Cleanup deprovisions a single user. Teardown failures never fail the
// test: they are logged and the email stops being tracked either way, since
// retrying a broken deprovision at scope exit would only fail again.
func (f *Fixture) Cleanup(ctx context.Context, email string) {
	f.untrack(email)

	resp, err := f.do(ctx, http.MethodDelete, f.endpoint("/user"), map[string]string{
		"email": email,
	})
	if err != nil {
		f.t.Logf("test user cleanup failed for %s: %v", email, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		f.t.Logf("test user cleanup failed for %s: status %d body %s", email, resp.StatusCode, body)
	}
}

// Capabilities asks the server which plugins and auth features are active.
func (f *Fixture) Capabilities(ctx context.Context) (*Capabilities, error) {
	resp, err := f.do(ctx, http.MethodGet, f.endpoint("/capabilities"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, goerrors.New("capabilities request failed", goerrors.CategoryOperation).
			WithMetadata(map[string]any{
				"status": resp.StatusCode,
				"body":   string(body),
			})
	}

	caps := &Capabilities{}
	if err := json.NewDecoder(resp.Body).Decode(caps); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not decode capabilities response")
	}

	return caps, nil
}

// Capabilities describes what the server side has enabled.
type Capabilities struct {
	Plugins             []string `json:"plugins"`
	DetectedAuthPlugins []string `json:"detectedAuthPlugins"`
}

// Close deprovisions every user still tracked, in creation order. It is
// registered with the test's cleanup stack by New.
func (f *Fixture) Close() {
	f.mu.Lock()
	pending := make([]string, len(f.tracked))
	copy(pending, f.tracked)
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, email := range pending {
		f.Cleanup(ctx, email)
	}
}

func (f *Fixture) endpoint(route string) string {
	return f.baseURL + f.basePath + route
}

func (f *Fixture) do(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode request payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not build request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(secretHeader, f.secret)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "test data request failed").
			WithMetadata(map[string]any{
				"endpoint": endpoint,
				"method":   method,
			})
	}

	return resp, nil
}

func (f *Fixture) installCookies(ctx context.Context, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	converted := make([]Cookie, 0, len(cookies))
	for _, ck := range cookies {
		domain := ck.Domain
		if domain == "" {
			domain = f.domain
		}
		path := ck.Path
		if path == "" {
			path = "/"
		}
		converted = append(converted, Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   domain,
			Path:     path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HttpOnly,
			Secure:   ck.Secure,
			SameSite: sameSiteString(ck.SameSite),
		})
	}

	if err := f.browser.AddCookies(ctx, converted); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "could not install session cookies")
	}

	return nil
}

func (f *Fixture) track(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, email)
}

func (f *Fixture) untrack(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.tracked {
		if e == email {
			f.tracked = append(f.tracked[:i], f.tracked[i+1:]...)
			return
		}
	}
}

// Tracked returns the emails still pending teardown, in creation order.
func (f *Fixture) Tracked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tracked))
	copy(out, f.tracked)
	return out
}

func (f *Fixture) randomEmail() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("test-%s@%s", uuid.NewString()[:8], f.emailDomain)
	}
	return fmt.Sprintf("test-%s@%s", hex.EncodeToString(buf), f.emailDomain)
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
