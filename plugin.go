package testkit

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Plugin attaches auxiliary resources to a freshly provisioned user. The ID
// must match the identifier of the backend feature the plugin augments; it
// keys both the caller-supplied options payload and the result mapping.
//
// Plugins must be stateless across calls: all per-call state flows through
// the CreateContext and options, so one instance serves concurrent
// provisioning calls.
type Plugin interface {
	ID() string

	// OnCreate runs once per provisioning call, after the base user,
	// credential, and session exist. opts is the caller's plugin-specific
	// configuration (never nil, may be empty). A nil result means the plugin
	// skipped. OnCreate may mutate the session row; the orchestrator
	// re-fetches the session afterwards, so in-memory copies are not
	// authoritative once plugins have run.
	OnCreate(ctx context.Context, pc *CreateContext, opts map[string]any) (any, error)
}

// CleanupPlugin is a Plugin that also tears its resources down during
// deprovisioning. OnDelete must be idempotent and should not fail for
// already-gone resources; failures are isolated into warnings and never
// block the user deletion.
type CleanupPlugin interface {
	Plugin
	OnDelete(ctx context.Context, dc *DeleteContext) error
}

// CreateContext carries the per-call state handed to Plugin.OnCreate.
type CreateContext struct {
	DB      *bun.DB
	Repo    RepositoryManager
	User    *User
	Session *Session
	Request *ProvisionUserRequest
	Logger  Logger
}

// DeleteContext carries the per-call state handed to CleanupPlugin.OnDelete.
type DeleteContext struct {
	DB     *bun.DB
	Repo   RepositoryManager
	User   *User
	Logger Logger
}

// Registry holds plugins in registration order. Provisioning runs OnCreate
// hooks in that order; deprovisioning runs OnDelete hooks in reverse, so
// resources tear down in reverse dependency order.
type Registry struct {
	plugins []Plugin
	index   map[string]Plugin
}

func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		index: map[string]Plugin{},
	}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for wiring code that treats a bad plugin set
// as a programming error.
func MustRegistry(plugins ...Plugin) *Registry {
	r, err := NewRegistry(plugins...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return errors.New("cannot register nil plugin", errors.CategoryBadInput)
	}

	id := p.ID()
	if id == "" {
		return errors.New("cannot register plugin with empty id", errors.CategoryBadInput)
	}

	if _, exists := r.index[id]; exists {
		return errors.New("plugin already registered", errors.CategoryConflict).
			WithTextCode(TextCodeDuplicatePlugin).
			WithMetadata(map[string]any{
				"plugin": id,
			})
	}

	if r.index == nil {
		r.index = map[string]Plugin{}
	}

	r.index[id] = p
	r.plugins = append(r.plugins, p)
	return nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.plugins)
}

// IDs returns plugin identifiers in registration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return []string{}
	}
	ids := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		ids = append(ids, p.ID())
	}
	return ids
}

// Plugins returns the plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	if r == nil {
		return nil
	}
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Reversed returns the plugins in reverse registration order.
func (r *Registry) Reversed() []Plugin {
	if r == nil {
		return nil
	}
	out := make([]Plugin, len(r.plugins))
	for i, p := range r.plugins {
		out[len(r.plugins)-1-i] = p
	}
	return out
}
