// Package organization provisions a workspace for every test user so flows
// that assume an active organization work out of the box.
package organization

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PluginID keys this plugin's options and results.
const PluginID = "organization"

const (
	// RoleOwner is assigned to the provisioned user's membership.
	RoleOwner = "owner"

	// SessionOrgKey is the session data key carrying the active
	// organization, so the signed cookie lands the user inside their
	// workspace.
	SessionOrgKey = "active_organization_id"
)

type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	Slug          string     `bun:"slug,notnull,unique" json:"slug"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

type Member struct {
	bun.BaseModel  `bun:"table:organization_members,alias:mem"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	OrganizationID uuid.UUID  `bun:"organization_id,notnull,type:uuid" json:"organization_id"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Role           string     `bun:"role,notnull" json:"role"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Plugin implements testkit.CleanupPlugin.
type Plugin struct{}

var _ testkit.CleanupPlugin = (*Plugin)(nil)

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string {
	return PluginID
}

// OnCreate builds an organization, makes the user its owner, and points the
// session at it. Options: "name" and "slug" override the generated values,
// "role" overrides the owner role.
func (p *Plugin) OnCreate(ctx context.Context, pc *testkit.CreateContext, opts map[string]any) (any, error) {
	name := stringOpt(opts, "name")
	if name == "" {
		name = fmt.Sprintf("%s's Workspace", pc.User.Name)
	}

	slug := stringOpt(opts, "slug")
	if slug == "" {
		slug = slugify(name) + "-" + randomSuffix()
	}

	role := stringOpt(opts, "role")
	if role == "" {
		role = RoleOwner
	}

	org := &Organization{
		ID:   uuid.New(),
		Name: name,
		Slug: slug,
	}

	err := pc.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(org).Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create organization").
				WithMetadata(map[string]any{
					"slug": slug,
				})
		}

		member := &Member{
			ID:             uuid.New(),
			OrganizationID: org.ID,
			UserID:         pc.User.ID,
			Role:           role,
		}
		if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create organization member")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	pc.Session.SetData(SessionOrgKey, org.ID.String())
	if _, err := pc.Repo.Sessions().Update(ctx, pc.Session); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not set active organization on session")
	}

	return map[string]any{
		"organizationId": org.ID.String(),
		"slug":           org.Slug,
	}, nil
}

// OnDelete removes the user's memberships, then any organization left with
// no members at all. Shared organizations survive as long as another user
// still belongs to them.
func (p *Plugin) OnDelete(ctx context.Context, dc *testkit.DeleteContext) error {
	return dc.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*Member)(nil)).
			Where("?TableAlias.user_id = ?", dc.User.ID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete organization memberships")
		}

		if _, err := tx.NewDelete().
			Model((*Organization)(nil)).
			Where("NOT EXISTS (SELECT 1 FROM organization_members mem WHERE mem.organization_id = ?TableAlias.id)").
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete orphaned organizations")
		}

		return nil
	})
}

func stringOpt(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	if v, ok := opts[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func randomSuffix() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:6]
	}
	return hex.EncodeToString(buf)
}
