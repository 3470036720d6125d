// Package apikey mints a ready-to-use API key for every test user so
// API-surface tests never have to click through key creation flows.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PluginID keys this plugin's options and results.
const PluginID = "api-key"

// keyPrefix marks provisioned keys so they are recognizable in logs and
// easy to purge in bulk.
const keyPrefix = "test_"

// ApiKey stores only a hash of the minted key. The plaintext value appears
// exactly once, in the provisioning response.
type ApiKey struct {
	bun.BaseModel `bun:"table:api_keys,alias:apk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Name          string     `bun:"name" json:"name"`
	Prefix        string     `bun:"prefix,notnull" json:"prefix"`
	KeyHash       string     `bun:"key_hash,notnull,unique" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
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

// OnCreate mints an API key for the user. Options: "name" labels the key.
// The plaintext key is returned in the result and never stored.
func (p *Plugin) OnCreate(ctx context.Context, pc *testkit.CreateContext, opts map[string]any) (any, error) {
	name := "test key"
	if v, ok := opts["name"].(string); ok && strings.TrimSpace(v) != "" {
		name = strings.TrimSpace(v)
	}

	plaintext, err := mintKey()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not generate api key")
	}

	sum := sha256.Sum256([]byte(plaintext))

	record := &ApiKey{
		ID:      uuid.New(),
		UserID:  pc.User.ID,
		Name:    name,
		Prefix:  keyPrefix,
		KeyHash: hex.EncodeToString(sum[:]),
	}

	if _, err := pc.DB.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not store api key")
	}

	return map[string]any{
		"id":  record.ID.String(),
		"key": plaintext,
	}, nil
}

// OnDelete removes every key the user holds.
func (p *Plugin) OnDelete(ctx context.Context, dc *testkit.DeleteContext) error {
	if _, err := dc.DB.NewDelete().
		Model((*ApiKey)(nil)).
		Where("?TableAlias.user_id = ?", dc.User.ID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete api keys")
	}
	return nil
}

func mintKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
