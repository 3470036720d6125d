package testkit

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type CreateTestUserMessage struct {
	Email      string                    `json:"email"`
	Name       string                    `json:"name"`
	Password   string                    `json:"password"`
	Phone      string                    `json:"phone"`
	PluginData map[string]map[string]any `json:"plugin_data"`
	UseHashid  bool

	OnResponse func(*CreateTestUserResponse)
}

func (e CreateTestUserMessage) Type() string { return "testdata.user.create" }

// CreateTestUserResponse carries the provisioned user, its signed-in
// session, and the per-plugin results keyed by plugin ID. Plugins holds an
// entry for every registered plugin that returned a non-nil result; it is
// empty, never nil, when no plugin contributed.
type CreateTestUserResponse struct {
	User    *User          `json:"user"`
	Session *Session       `json:"session"`
	Plugins map[string]any `json:"plugins"`
	Cookie  string         `json:"-"`
}

type CreateTestUserHandler struct {
	db          *bun.DB
	repo        RepositoryManager
	registry    *Registry
	cookies     SessionCookieService
	logger      Logger
	sessionTTL  time.Duration
	phoneRegion string
}

type CreateTestUserOption func(*CreateTestUserHandler)

func WithCreateLogger(logger Logger) CreateTestUserOption {
	return func(h *CreateTestUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithSessionTTL(ttl time.Duration) CreateTestUserOption {
	return func(h *CreateTestUserHandler) {
		if ttl > 0 {
			h.sessionTTL = ttl
		}
	}
}

// WithPhoneRegion sets the default region used to parse phone numbers that
// arrive without a country prefix.
func WithPhoneRegion(region string) CreateTestUserOption {
	return func(h *CreateTestUserHandler) {
		if region != "" {
			h.phoneRegion = region
		}
	}
}

func NewCreateTestUserHandler(db *bun.DB, repo RepositoryManager, registry *Registry, cookies SessionCookieService, opts ...CreateTestUserOption) *CreateTestUserHandler {
	h := &CreateTestUserHandler{
		db:          db,
		repo:        repo,
		registry:    registry,
		cookies:     cookies,
		logger:      defLogger{},
		sessionTTL:  DefaultSessionTTL,
		phoneRegion: "US",
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *CreateTestUserHandler) Execute(ctx context.Context, event CreateTestUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during test user provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateTestUserHandler) execute(ctx context.Context, event CreateTestUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// The HTTP boundary validates payloads, but the handler is also a
	// library entry point and must not store a user without an email.
	if strings.TrimSpace(event.Email) == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user := &User{
		Email:         event.Email,
		Name:          getDisplayName(event.Name, event.Email),
		EmailVerified: true,
	}

	if event.Phone != "" {
		phone, err := h.normalizePhone(event.Phone)
		if err != nil {
			return err
		}
		user.Phone = phone
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}
	}

	var session *Session

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithCode(goerrors.CodeConflict).
				WithMetadata(map[string]any{
					"email": event.Email,
				})
		}

		if event.Password != "" {
			hash, err := HashPassword(event.Password)
			if err != nil {
				var richErr *goerrors.Error
				if goerrors.As(err, &richErr) {
					return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
			}

			account := &Account{
				UserID:       user.ID,
				ProviderID:   CredentialProvider,
				PasswordHash: hash,
			}
			if _, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create credential account")
			}
		}

		session = &Session{
			Token:     uuid.NewString(),
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(h.sessionTTL),
		}
		if session, err = h.repo.Sessions().CreateTx(ctx, tx, session); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create session")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "test user provisioning transaction failed")
	}

	results, err := h.runPlugins(ctx, user, session, &event)
	if err != nil {
		return err
	}

	// Plugins may have mutated the session row; the signed cookie has to
	// reflect the stored state, so re-read before signing.
	session, err = h.repo.Sessions().GetByToken(ctx, session.Token)
	if err != nil {
		h.rollbackUser(ctx, user)
		return ErrSessionLost.Clone().WithMetadata(map[string]any{
			"email": user.Email,
		})
	}

	cookie, err := h.cookies.Sign(session)
	if err != nil {
		h.rollbackUser(ctx, user)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not sign session cookie")
	}

	if event.OnResponse != nil {
		event.OnResponse(&CreateTestUserResponse{
			User:    user,
			Session: session,
			Plugins: results,
			Cookie:  cookie,
		})
	}

	return nil
}

// runPlugins executes OnCreate hooks in registration order. The first
// failure aborts the call and rolls back the user so a failed provisioning
// leaves no partial state behind.
func (h *CreateTestUserHandler) runPlugins(ctx context.Context, user *User, session *Session, event *CreateTestUserMessage) (map[string]any, error) {
	results := map[string]any{}

	if h.registry.Len() == 0 {
		return results, nil
	}

	pc := &CreateContext{
		DB:      h.db,
		Repo:    h.repo,
		User:    user,
		Session: session,
		Logger:  h.logger,
		Request: &ProvisionUserRequest{
			Email:      event.Email,
			Name:       event.Name,
			Password:   event.Password,
			Phone:      event.Phone,
			PluginData: event.PluginData,
		},
	}

	for _, plugin := range h.registry.Plugins() {
		opts := event.PluginData[plugin.ID()]
		if opts == nil {
			opts = map[string]any{}
		}

		result, err := plugin.OnCreate(ctx, pc, opts)
		if err != nil {
			meta := map[string]any{
				"plugin": plugin.ID(),
				"email":  user.Email,
			}

			if rbErr := h.repo.Users().DeleteByID(ctx, user.ID); rbErr != nil {
				meta["rollback"] = "failed"
				meta["rollback_error"] = rbErr.Error()
			} else {
				meta["rollback"] = "ok"
			}

			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "plugin failed during user provisioning").
				WithTextCode(TextCodePluginFailed).
				WithMetadata(meta)
		}

		if result != nil {
			results[plugin.ID()] = result
		}
	}

	return results, nil
}

// rollbackUser is best effort. The caller is already returning an error and
// a leftover row in a test database is an acceptable outcome of a failed
// rollback.
func (h *CreateTestUserHandler) rollbackUser(ctx context.Context, user *User) {
	if err := h.repo.Users().DeleteByID(ctx, user.ID); err != nil {
		h.logger.Warn("rollback of user %s failed: %v", user.Email, err)
	}
}

func (h *CreateTestUserHandler) normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, h.phoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "could not parse phone number").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"phone": raw,
			})
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"phone": raw,
			})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func getDisplayName(name, email string) string {
	if name != "" {
		return name
	}

	if strings.Contains(email, "@") {
		name = strings.Split(email, "@")[0]
	}

	return name
}
