package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed with another key.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the JWT claims identifying a caller.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// TokenProvider issues and validates HS256 access tokens.
type TokenProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokenProvider returns a TokenProvider signing with secret.
func NewTokenProvider(secret []byte, issuer string, ttl time.Duration, clock clockwork.Clock) *TokenProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenProvider{secret: secret, issuer: issuer, ttl: ttl, clock: clock}
}

// Issue signs an access token for the caller and returns it with its expiry.
func (p *TokenProvider) Issue(caller models.Caller) (string, time.Time, error) {
	now := p.clock.Now().UTC()
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   caller.UserID.String(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: caller.AccountID.String(),
		Role:      string(caller.Role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates an access token (signature, exp, iss) and
// returns the caller it identifies.
func (p *TokenProvider) Verify(tokenString string) (models.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return models.Caller{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Caller{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Caller{}, ErrInvalidToken
	}
	accountID, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return models.Caller{}, ErrInvalidToken
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Caller{}, ErrInvalidToken
	}
	return models.Caller{UserID: userID, AccountID: accountID, Role: role}, nil
}
