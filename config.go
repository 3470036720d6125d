package testkit

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	// SecretEnvVar names the env variable carrying the shared provisioning
	// secret. When it is empty the endpoints stay dark.
	SecretEnvVar = "TEST_DATA_SECRET"

	// SigningKeyEnvVar names the env variable for the cookie signing key.
	// When unset the shared secret doubles as the signing key.
	SigningKeyEnvVar = "TEST_DATA_SIGNING_KEY"

	// HeaderTestDataSecret is the request header callers present the shared
	// secret in.
	HeaderTestDataSecret = "X-Test-Data-Secret"

	DefaultBasePath   = "/test-data"
	DefaultCookieName = "session_token"
	DefaultSessionTTL = 24 * time.Hour
)

type Config struct {
	Secret     string
	SigningKey string
	BasePath   string
	CookieName string
	Issuer     string
	SessionTTL time.Duration
}

// NewConfigFromEnv builds a Config from the process environment, loading a
// local .env file first when one exists. A missing secret is not an error:
// it yields a disabled config, and the route guard fails closed on it.
func NewConfigFromEnv() Config {
	godotenv.Load()

	cfg := Config{
		Secret:     os.Getenv(SecretEnvVar),
		SigningKey: os.Getenv(SigningKeyEnvVar),
		BasePath:   DefaultBasePath,
		CookieName: DefaultCookieName,
		SessionTTL: DefaultSessionTTL,
	}

	return cfg.WithDefaults()
}

// WithDefaults fills the optional fields so a partially built Config is
// safe to hand to the controller.
func (c Config) WithDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.SigningKey == "" {
		c.SigningKey = c.Secret
	}
	return c
}

// Enabled reports whether the provisioning endpoints should be served at
// all. Without a shared secret there is no way to authenticate callers, so
// everything stays hidden.
func (c Config) Enabled() bool {
	return c.Secret != ""
}
