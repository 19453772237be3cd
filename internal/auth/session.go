package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
)

// Issuer signs and verifies session tokens. Issued tokens are recorded in
// the token table by claim, never by signed value.
type Issuer struct {
	store    *Store
	secret   []byte
	issuer   string
	audience []string
	duration time.Duration
}

// IssuerOpts holds parameters for creating an Issuer.
type IssuerOpts struct {
	Store       *Store
	Secret      string
	IssuerName  string
	Audience    []string
	DurationSec int
}

// NewIssuer creates an Issuer.
func NewIssuer(opts IssuerOpts) (*Issuer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("auth: issuer: store is required")
	}
	if opts.Secret == "" {
		return nil, fmt.Errorf("auth: issuer: secret is required")
	}
	if opts.IssuerName == "" {
		return nil, fmt.Errorf("auth: issuer: issuer name is required")
	}
	duration := time.Duration(opts.DurationSec) * time.Second
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Issuer{
		store:    opts.Store,
		secret:   []byte(opts.Secret),
		issuer:   opts.IssuerName,
		audience: opts.Audience,
		duration: duration,
	}, nil
}

// CreateSession issues a signed JWT for a user and records its claims.
func (i *Issuer) CreateSession(ctx context.Context, user *models.User) (string, *models.Token, error) {
	now := time.Now()
	expires := now.Add(i.duration)
	tokenID := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        tokenID,
		Issuer:    i.issuer,
		Subject:   user.ID,
		Audience:  jwt.ClaimStrings(i.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign session for %q: %w", user.Name, err)
	}

	audience, err := json.Marshal(i.audience)
	if err != nil {
		return "", nil, fmt.Errorf("auth: marshal audience: %w", err)
	}

	row := models.Token{
		ID:        tokenID,
		UserID:    user.ID,
		Issuer:    i.issuer,
		Audience:  string(audience),
		ExpiresAt: expires,
	}
	if err := i.store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", nil, fmt.Errorf("auth: record session for %q: %w", user.Name, err)
	}

	return signed, &row, nil
}

// VerifySession validates a signed token and returns its claims.
func (i *Issuer) VerifySession(signed string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, fmt.Errorf("auth: verify session: %w: %w", command.ErrAuthorizationDenied, err)
	}
	return &claims, nil
}
