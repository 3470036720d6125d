package testkit_test

import (
	"testing"
	"time"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("reads secret and signing key", func(t *testing.T) {
		t.Setenv(testkit.SecretEnvVar, "env-secret")
		t.Setenv(testkit.SigningKeyEnvVar, "env-signing-key")

		cfg := testkit.NewConfigFromEnv()

		assert.True(t, cfg.Enabled())
		assert.Equal(t, "env-secret", cfg.Secret)
		assert.Equal(t, "env-signing-key", cfg.SigningKey)
		assert.Equal(t, testkit.DefaultBasePath, cfg.BasePath)
		assert.Equal(t, testkit.DefaultCookieName, cfg.CookieName)
		assert.Equal(t, testkit.DefaultSessionTTL, cfg.SessionTTL)
	})

	t.Run("signing key falls back to secret", func(t *testing.T) {
		t.Setenv(testkit.SecretEnvVar, "only-secret")
		t.Setenv(testkit.SigningKeyEnvVar, "")

		cfg := testkit.NewConfigFromEnv()

		assert.Equal(t, "only-secret", cfg.SigningKey)
	})

	t.Run("disabled without secret", func(t *testing.T) {
		t.Setenv(testkit.SecretEnvVar, "")
		t.Setenv(testkit.SigningKeyEnvVar, "")

		cfg := testkit.NewConfigFromEnv()

		assert.False(t, cfg.Enabled())
	})
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := testkit.Config{
		Secret:     "s",
		BasePath:   "/qa-data",
		SessionTTL: time.Hour,
	}.WithDefaults()

	assert.Equal(t, "/qa-data", cfg.BasePath, "explicit values survive")
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, testkit.DefaultCookieName, cfg.CookieName)
	assert.Equal(t, "s", cfg.SigningKey)
}
