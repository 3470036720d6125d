package testkit

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type DeleteTestUserMessage struct {
	Email string `json:"email"`

	OnResponse func(*DeleteTestUserResponse)
}

func (e DeleteTestUserMessage) Type() string { return "testdata.user.delete" }

// DeleteTestUserResponse reports the teardown outcome. Warnings collects
// per-plugin cleanup failures; the user deletion itself either succeeds or
// the handler returns an error.
type DeleteTestUserResponse struct {
	Success  bool     `json:"success"`
	Warnings []string `json:"warnings,omitempty"`
}

type DeleteTestUserHandler struct {
	db       *bun.DB
	repo     RepositoryManager
	registry *Registry
	logger   Logger
}

type DeleteTestUserOption func(*DeleteTestUserHandler)

func WithDeleteLogger(logger Logger) DeleteTestUserOption {
	return func(h *DeleteTestUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewDeleteTestUserHandler(db *bun.DB, repo RepositoryManager, registry *Registry, opts ...DeleteTestUserOption) *DeleteTestUserHandler {
	h := &DeleteTestUserHandler{
		db:       db,
		repo:     repo,
		registry: registry,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *DeleteTestUserHandler) Execute(ctx context.Context, event DeleteTestUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during test user teardown",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteTestUserHandler) execute(ctx context.Context, event DeleteTestUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound.Clone().WithMetadata(map[string]any{
				"email": event.Email,
			})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not look up user for teardown")
	}

	dc := &DeleteContext{
		DB:     h.db,
		Repo:   h.repo,
		User:   user,
		Logger: h.logger,
	}

	// Plugin cleanup runs in reverse registration order and is failure
	// isolated: a broken plugin must not strand the user row, so errors
	// downgrade to warnings and deletion proceeds regardless.
	var warnings []string
	for _, plugin := range h.registry.Reversed() {
		cleaner, ok := plugin.(CleanupPlugin)
		if !ok {
			continue
		}

		if err := cleaner.OnDelete(ctx, dc); err != nil {
			warning := fmt.Sprintf("plugin %s: %v", plugin.ID(), err)
			h.logger.Warn("cleanup %s", warning)
			warnings = append(warnings, warning)
		}
	}

	if err := h.repo.Users().DeleteByID(ctx, user.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete user").
			WithMetadata(map[string]any{
				"email": event.Email,
			})
	}

	if event.OnResponse != nil {
		event.OnResponse(&DeleteTestUserResponse{
			Success:  true,
			Warnings: warnings,
		})
	}

	return nil
}
