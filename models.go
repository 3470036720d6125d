package testkit

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialProvider is the provider discriminator for password accounts.
const CredentialProvider = "credential"

// User is a provisioned test account. Email verification is skipped for
// test users, so EmailVerified is always set on creation.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string         `bun:"name,notnull" json:"name,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string         `bun:"phone_number" json:"phone_number,omitempty"`
	EmailVerified bool           `bun:"email_verified" json:"email_verified,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PublicUser is the outward projection returned by the provisioning
// endpoints.
type PublicUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Public returns the user's outward fields.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// Account is a login method bound to a user. Provisioning creates at most
// one, with provider "credential", when the caller supplies a password.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ProviderID    string     `bun:"provider_id,notnull" json:"provider_id,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"password_hash,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Session is an authenticated browser session. Plugins may mutate Data in
// place during provisioning (e.g. set an active organization); the
// orchestrator re-fetches the row by token before finalizing, so the stored
// Data always wins over the in-memory copy.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string         `bun:"token,notnull,unique" json:"token,omitempty"`
	UserID        uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Data          map[string]any `bun:"data" json:"data,omitempty"`
	ExpiresAt     time.Time      `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SetData will set a key on the session data attribute
func (s *Session) SetData(key string, val any) *Session {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = val
	return s
}

// SessionInfo is the outward projection of a session.
type SessionInfo struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"token"`
}

// Info returns the session's outward fields.
func (s *Session) Info() SessionInfo {
	if s == nil {
		return SessionInfo{}
	}
	return SessionInfo{ID: s.ID, Token: s.Token}
}
