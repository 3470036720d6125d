package testkit

import "github.com/goliatone/go-errors"

const (
	TextCodeDisabled        = "test_data_disabled"
	TextCodeBadSecret       = "test_data_bad_secret"
	TextCodeUserNotFound    = "test_data_user_not_found"
	TextCodeSessionLost     = "test_data_session_lost"
	TextCodePluginFailed    = "test_data_plugin_failed"
	TextCodeDuplicatePlugin = "test_data_duplicate_plugin"
)

// ErrEndpointsDisabled is returned when no shared secret is configured.
// The endpoints answer not-found rather than unauthorized so their very
// existence is not observable on deployments that never opted in.
var ErrEndpointsDisabled = errors.New("test data endpoints are disabled", errors.CategoryNotFound).
	WithTextCode(TextCodeDisabled).
	WithCode(errors.CodeNotFound)

// ErrSecretMismatch is returned when the request secret header does not
// match the configured shared secret.
var ErrSecretMismatch = errors.New("invalid test data secret", errors.CategoryAuth).
	WithTextCode(TextCodeBadSecret).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound is returned when deprovisioning an email with no user.
var ErrUserNotFound = errors.New("test user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrSessionLost is returned when the session re-fetch after plugin
// execution finds nothing. The stale in-memory session is never used as a
// fallback: the signed cookie must reflect plugin mutations.
var ErrSessionLost = errors.New("session not found after plugin execution", errors.CategoryInternal).
	WithTextCode(TextCodeSessionLost).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString guards hashing helpers against empty input.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match
// its stored hash.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)
