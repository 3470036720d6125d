package testkit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// SessionCookieService turns session rows into signed cookie values the
// application under test will accept, and back.
type SessionCookieService interface {
	Sign(session *Session) (string, error)
	Validate(raw string) (*SessionClaims, error)
}

// SessionClaims is the cookie payload. Data mirrors the session row's data
// column at signing time, so plugin mutations made before signing travel
// with the cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string         `json:"sid"`
	Token     string         `json:"stk"`
	Data      map[string]any `json:"data,omitempty"`
}

type sessionCookieService struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

func NewSessionCookieService(signingKey []byte, issuer string, logger Logger) SessionCookieService {
	if logger == nil {
		logger = defLogger{}
	}
	return &sessionCookieService{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     logger,
	}
}

func (ts *sessionCookieService) Sign(session *Session) (string, error) {
	if session == nil {
		return "", errors.New("session must not be nil", errors.CategoryInternal)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   session.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		SessionID: session.ID.String(),
		Token:     session.Token,
		Data:      session.Data,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session cookie")
	}

	return signedString, nil
}

func (ts *sessionCookieService) Validate(raw string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("session cookie has unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid session cookie")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("could not decode session cookie claims", errors.CategoryAuth)
	}

	return claims, nil
}
