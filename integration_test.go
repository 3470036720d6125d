package testkit_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	"github.com/gaffer-sh/better-auth-playwright/plugins/apikey"
	"github.com/gaffer-sh/better-auth-playwright/plugins/organization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupIntegrationDB(t *testing.T) (*bun.DB, testkit.RepositoryManager) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*testkit.User)(nil),
		(*testkit.Account)(nil),
		(*testkit.Session)(nil),
		(*organization.Organization)(nil),
		(*organization.Member)(nil),
		(*apikey.ApiKey)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db, testkit.NewRepositoryManager(db)
}

func TestProvisionAndDeprovisionRoundTrip(t *testing.T) {
	db, repo := setupIntegrationDB(t)
	ctx := context.Background()

	registry := testkit.MustRegistry(
		organization.New(),
		apikey.New(),
	)

	cookies := testkit.NewSessionCookieService([]byte("integration-key"), "testkit", nil)
	create := testkit.NewCreateTestUserHandler(db, repo, registry, cookies)

	var res *testkit.CreateTestUserResponse
	err := create.Execute(ctx, testkit.CreateTestUserMessage{
		Email:    "roundtrip@example.com",
		Password: "round-trip-pw-1",
		PluginData: map[string]map[string]any{
			organization.PluginID: {"name": "Trip Corp"},
		},
		OnResponse: func(r *testkit.CreateTestUserResponse) {
			res = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	// base records
	assert.Equal(t, "roundtrip@example.com", res.User.Email)
	assert.Equal(t, "roundtrip", res.User.Name)

	accounts, err := repo.Accounts().ListByUser(ctx, res.User.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, testkit.CredentialProvider, accounts[0].ProviderID)
	assert.NoError(t, testkit.ComparePasswordAndHash("round-trip-pw-1", accounts[0].PasswordHash))

	// both plugins contributed results
	orgResult, ok := res.Plugins[organization.PluginID].(map[string]any)
	require.True(t, ok)
	keyResult, ok := res.Plugins[apikey.PluginID].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, keyResult["key"])

	// the session carries the plugin mutation and the cookie reflects it
	assert.Equal(t, orgResult["organizationId"], res.Session.Data[organization.SessionOrgKey])

	claims, err := cookies.Validate(res.Cookie)
	require.NoError(t, err)
	assert.Equal(t, res.Session.Token, claims.Token)
	assert.Equal(t, orgResult["organizationId"], claims.Data[organization.SessionOrgKey])

	// now tear it all down
	del := testkit.NewDeleteTestUserHandler(db, repo, registry)

	var delRes *testkit.DeleteTestUserResponse
	err = del.Execute(ctx, testkit.DeleteTestUserMessage{
		Email: "roundtrip@example.com",
		OnResponse: func(r *testkit.DeleteTestUserResponse) {
			delRes = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, delRes)
	assert.True(t, delRes.Success)
	assert.Empty(t, delRes.Warnings)

	for name, model := range map[string]any{
		"users":                (*testkit.User)(nil),
		"accounts":             (*testkit.Account)(nil),
		"sessions":             (*testkit.Session)(nil),
		"organizations":        (*organization.Organization)(nil),
		"organization members": (*organization.Member)(nil),
		"api keys":             (*apikey.ApiKey)(nil),
	} {
		count, err := db.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.Zerof(t, count, "%s should be empty after deprovisioning", name)
	}
}

func TestProvisionRollbackLeavesNoRows(t *testing.T) {
	db, repo := setupIntegrationDB(t)
	ctx := context.Background()

	registry := testkit.MustRegistry(
		organization.New(),
		&failingPlugin{},
	)

	cookies := testkit.NewSessionCookieService([]byte("integration-key"), "", nil)
	create := testkit.NewCreateTestUserHandler(db, repo, registry, cookies)

	err := create.Execute(ctx, testkit.CreateTestUserMessage{
		Email: "doomed@example.com",
	})
	require.Error(t, err)

	for name, model := range map[string]any{
		"users":    (*testkit.User)(nil),
		"sessions": (*testkit.Session)(nil),
	} {
		count, err := db.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.Zerof(t, count, "%s should be empty after a failed provisioning", name)
	}
}

func TestDeprovisionSurvivesBrokenPlugin(t *testing.T) {
	db, repo := setupIntegrationDB(t)
	ctx := context.Background()

	createRegistry := testkit.MustRegistry(organization.New())
	cookies := testkit.NewSessionCookieService([]byte("integration-key"), "", nil)
	create := testkit.NewCreateTestUserHandler(db, repo, createRegistry, cookies)

	require.NoError(t, create.Execute(ctx, testkit.CreateTestUserMessage{
		Email: "resilient@example.com",
	}))

	// teardown runs with an additional plugin whose cleanup always fails
	delRegistry := testkit.MustRegistry(organization.New(), &failingPlugin{})
	del := testkit.NewDeleteTestUserHandler(db, repo, delRegistry)

	var delRes *testkit.DeleteTestUserResponse
	err := del.Execute(ctx, testkit.DeleteTestUserMessage{
		Email: "resilient@example.com",
		OnResponse: func(r *testkit.DeleteTestUserResponse) {
			delRes = r
		},
	})
	require.NoError(t, err)

	require.NotNil(t, delRes)
	assert.True(t, delRes.Success)
	require.Len(t, delRes.Warnings, 1)
	assert.Contains(t, delRes.Warnings[0], "always-broken")

	count, err := db.NewSelect().Model((*testkit.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// failingPlugin fails both hooks unconditionally.
type failingPlugin struct{}

func (p *failingPlugin) ID() string { return "always-broken" }

func (p *failingPlugin) OnCreate(ctx context.Context, pc *testkit.CreateContext, opts map[string]any) (any, error) {
	return nil, assert.AnError
}

func (p *failingPlugin) OnDelete(ctx context.Context, dc *testkit.DeleteContext) error {
	return assert.AnError
}
