package testkit_test

import (
	"context"
	"database/sql"

	testkit "github.com/gaffer-sh/better-auth-playwright"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers implements testkit.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) Create(ctx context.Context, record *testkit.User) (*testkit.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*testkit.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *testkit.User) (*testkit.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*testkit.User)
	if user == nil && args.Error(1) == nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		user = record
	}
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*testkit.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*testkit.User)
	return user, args.Error(1)
}

func (m *MockUsers) DeleteByID(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessions implements testkit.Sessions. It remembers the last session
// handed to CreateTx so GetByToken can echo the stored row back when the
// test does not configure an explicit return, mirroring a real store.
type MockSessions struct {
	mock.Mock
	lastCreated *testkit.Session
}

func (m *MockSessions) Create(ctx context.Context, record *testkit.Session) (*testkit.Session, error) {
	args := m.Called(ctx, record)
	session, _ := args.Get(0).(*testkit.Session)
	return session, args.Error(1)
}

func (m *MockSessions) CreateTx(ctx context.Context, tx bun.IDB, record *testkit.Session) (*testkit.Session, error) {
	args := m.Called(ctx, tx, record)
	session, _ := args.Get(0).(*testkit.Session)
	if session == nil && args.Error(1) == nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		session = record
	}
	m.lastCreated = session
	return session, args.Error(1)
}

func (m *MockSessions) GetByToken(ctx context.Context, token string) (*testkit.Session, error) {
	args := m.Called(ctx, token)
	session, _ := args.Get(0).(*testkit.Session)
	if session == nil && args.Error(1) == nil {
		session = m.lastCreated
	}
	return session, args.Error(1)
}

func (m *MockSessions) Update(ctx context.Context, record *testkit.Session) (*testkit.Session, error) {
	args := m.Called(ctx, record)
	session, _ := args.Get(0).(*testkit.Session)
	return session, args.Error(1)
}

// MockAccounts implements testkit.Accounts
type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) Create(ctx context.Context, record *testkit.Account) (*testkit.Account, error) {
	args := m.Called(ctx, record)
	account, _ := args.Get(0).(*testkit.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *testkit.Account) (*testkit.Account, error) {
	args := m.Called(ctx, tx, record)
	account, _ := args.Get(0).(*testkit.Account)
	if account == nil && args.Error(1) == nil {
		account = record
	}
	return account, args.Error(1)
}

func (m *MockAccounts) ListByUser(ctx context.Context, userID uuid.UUID) ([]*testkit.Account, error) {
	args := m.Called(ctx, userID)
	accounts, _ := args.Get(0).([]*testkit.Account)
	return accounts, args.Error(1)
}

// MockRepositoryManager implements testkit.RepositoryManager. RunInTx hands
// the callback a zero bun.Tx; the repositories behind it are mocks and never
// touch it.
type MockRepositoryManager struct {
	mock.Mock
	users    *MockUsers
	sessions *MockSessions
	accounts *MockAccounts
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		users:    &MockUsers{},
		sessions: &MockSessions{},
		accounts: &MockAccounts{},
	}
}

func (m *MockRepositoryManager) Validate() error {
	return nil
}

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Users() testkit.Users {
	return m.users
}

func (m *MockRepositoryManager) Sessions() testkit.Sessions {
	return m.sessions
}

func (m *MockRepositoryManager) Accounts() testkit.Accounts {
	return m.accounts
}

// MockCookieService implements testkit.SessionCookieService
type MockCookieService struct {
	mock.Mock
}

func (m *MockCookieService) Sign(session *testkit.Session) (string, error) {
	args := m.Called(session)
	return args.String(0), args.Error(1)
}

func (m *MockCookieService) Validate(raw string) (*testkit.SessionClaims, error) {
	args := m.Called(raw)
	claims, _ := args.Get(0).(*testkit.SessionClaims)
	return claims, args.Error(1)
}

// fakePlugin is a scriptable plugin for orchestrator tests. It records call
// order into a shared trace slice.
type fakePlugin struct {
	id       string
	result   any
	err      error
	deleteFn func(ctx context.Context, dc *testkit.DeleteContext) error
	trace    *[]string
}

func (p *fakePlugin) ID() string { return p.id }

func (p *fakePlugin) OnCreate(ctx context.Context, pc *testkit.CreateContext, opts map[string]any) (any, error) {
	if p.trace != nil {
		*p.trace = append(*p.trace, "create:"+p.id)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakePlugin) OnDelete(ctx context.Context, dc *testkit.DeleteContext) error {
	if p.trace != nil {
		*p.trace = append(*p.trace, "delete:"+p.id)
	}
	if p.deleteFn != nil {
		return p.deleteFn(ctx, dc)
	}
	return nil
}

// createOnlyPlugin has no cleanup hook.
type createOnlyPlugin struct {
	id    string
	trace *[]string
}

func (p *createOnlyPlugin) ID() string { return p.id }

func (p *createOnlyPlugin) OnCreate(ctx context.Context, pc *testkit.CreateContext, opts map[string]any) (any, error) {
	if p.trace != nil {
		*p.trace = append(*p.trace, "create:"+p.id)
	}
	return nil, nil
}
