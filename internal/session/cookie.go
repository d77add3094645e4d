package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/reservations/internal/model"
)

const issuer = "reservations"

// CookieStore keeps the whole session in a signed JWT held by the client.
//
// The server stores nothing, so Delete cannot revoke a token that was
// already handed out; it simply stops being re-issued. Use RedisStore when
// logout must be immediate.
type CookieStore struct {
	secret []byte
	now    func() time.Time
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore creates a CookieStore. The secret should be at least 32
// bytes of random data in production.
func NewCookieStore(secret string) (*CookieStore, error) {
	if len(secret) < 16 {
		return nil, errors.New("session: cookie secret must be at least 16 characters")
	}
	return &CookieStore{secret: []byte(secret), now: time.Now}, nil
}

// claims carries Data in the JWT payload; the user id travels as "sub".
type claims struct {
	jwt.RegisteredClaims
	User *model.User `json:"usr,omitempty"`
}

func (s *CookieStore) Save(_ context.Context, _ string, data Data, ttl time.Duration) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   data.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		User: data.User,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("session: signing token: %w", err)
	}
	return signed, nil
}

// Load verifies the signature, issuer and expiry. Any failure is ErrNotFound:
// a tampered or stale cookie is indistinguishable from no cookie.
func (s *CookieStore) Load(_ context.Context, token string) (Data, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Data{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return Data{UserID: c.Subject, User: c.User}, nil
}

func (s *CookieStore) Delete(context.Context, string) error {
	return nil
}
