package apikey_test

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"testing"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	"github.com/gaffer-sh/better-auth-playwright/plugins/apikey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupDB(t *testing.T) (*bun.DB, testkit.RepositoryManager) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*testkit.User)(nil),
		(*apikey.ApiKey)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db, testkit.NewRepositoryManager(db)
}

func seedUser(t *testing.T, repo testkit.RepositoryManager, email string) *testkit.User {
	t.Helper()
	user, err := repo.Users().Create(context.Background(), &testkit.User{
		Email: email,
		Name:  "Key Holder",
	})
	require.NoError(t, err)
	return user
}

func TestOnCreateMintsKey(t *testing.T) {
	db, repo := setupDB(t)
	user := seedUser(t, repo, "keys@example.com")

	plugin := apikey.New()
	result, err := plugin.OnCreate(context.Background(), &testkit.CreateContext{
		DB:   db,
		Repo: repo,
		User: user,
	}, map[string]any{})
	require.NoError(t, err)

	payload, ok := result.(map[string]any)
	require.True(t, ok)

	plaintext, ok := payload["key"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(plaintext, "test_"))
	assert.NotEmpty(t, payload["id"])

	// only the hash is stored
	record := &apikey.ApiKey{}
	require.NoError(t, db.NewSelect().Model(record).Scan(context.Background()))

	sum := sha256.Sum256([]byte(plaintext))
	assert.Equal(t, hex.EncodeToString(sum[:]), record.KeyHash)
	assert.Equal(t, user.ID, record.UserID)
	assert.Equal(t, "test key", record.Name)
}

func TestOnCreateHonorsNameOption(t *testing.T) {
	db, repo := setupDB(t)
	user := seedUser(t, repo, "named@example.com")

	plugin := apikey.New()
	_, err := plugin.OnCreate(context.Background(), &testkit.CreateContext{
		DB:   db,
		Repo: repo,
		User: user,
	}, map[string]any{"name": "ci key"})
	require.NoError(t, err)

	record := &apikey.ApiKey{}
	require.NoError(t, db.NewSelect().Model(record).Scan(context.Background()))
	assert.Equal(t, "ci key", record.Name)
}

func TestOnCreateMintsUniqueKeys(t *testing.T) {
	db, repo := setupDB(t)
	user := seedUser(t, repo, "many@example.com")

	plugin := apikey.New()
	pc := &testkit.CreateContext{DB: db, Repo: repo, User: user}

	first, err := plugin.OnCreate(context.Background(), pc, map[string]any{})
	require.NoError(t, err)
	second, err := plugin.OnCreate(context.Background(), pc, map[string]any{})
	require.NoError(t, err)

	assert.NotEqual(t,
		first.(map[string]any)["key"],
		second.(map[string]any)["key"],
	)
}

func TestOnDeleteRemovesAllKeys(t *testing.T) {
	db, repo := setupDB(t)
	user := seedUser(t, repo, "purge@example.com")
	other := seedUser(t, repo, "other@example.com")

	plugin := apikey.New()
	ctx := context.Background()

	_, err := plugin.OnCreate(ctx, &testkit.CreateContext{DB: db, Repo: repo, User: user}, map[string]any{})
	require.NoError(t, err)
	_, err = plugin.OnCreate(ctx, &testkit.CreateContext{DB: db, Repo: repo, User: user}, map[string]any{})
	require.NoError(t, err)
	_, err = plugin.OnCreate(ctx, &testkit.CreateContext{DB: db, Repo: repo, User: other}, map[string]any{})
	require.NoError(t, err)

	require.NoError(t, plugin.OnDelete(ctx, &testkit.DeleteContext{DB: db, Repo: repo, User: user}))

	count, err := db.NewSelect().
		Model((*apikey.ApiKey)(nil)).
		Where("?TableAlias.user_id = ?", user.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	otherCount, err := db.NewSelect().
		Model((*apikey.ApiKey)(nil)).
		Where("?TableAlias.user_id = ?", other.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, otherCount, "other users keep their keys")
}

func TestOnDeleteWithNoKeys(t *testing.T) {
	db, repo := setupDB(t)
	user := seedUser(t, repo, "empty@example.com")

	plugin := apikey.New()
	require.NoError(t, plugin.OnDelete(context.Background(), &testkit.DeleteContext{
		DB:   db,
		Repo: repo,
		User: user,
	}))
}

func TestPluginID(t *testing.T) {
	assert.Equal(t, "api-key", apikey.New().ID())
}
