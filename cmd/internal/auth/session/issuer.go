package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tether/cmd/security/token"
)

// TokenType is returned to clients alongside every pair.
const TokenType = "Bearer"

// Claims is the verified content of an access token.
type Claims struct {
	AccountID string
	Email     string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// AccessToken is a freshly signed access token.
type AccessToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens and mints raw refresh tokens.
type Issuer struct {
	cfg    Config
	secret []byte
	tokens token.Generator
}

// NewIssuer builds an Issuer from a validated Config.
func NewIssuer(cfg Config, tokens token.Generator) (*Issuer, error) {
	if len(cfg.AccessSecret) < MinSecretBytes || cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	return &Issuer{cfg: cfg, secret: []byte(cfg.AccessSecret), tokens: tokens}, nil
}

// IssueAccessToken signs an access token for the account. Each token gets a fresh id.
func (i *Issuer) IssueAccessToken(accountID, email, role string, now time.Time) (AccessToken, error) {
	// JWT numeric dates carry whole seconds.
	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(i.cfg.AccessTTL)
	jti := i.tokens.NewTokenID()

	claims := accessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        jti,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("session: sign access token: %w", err)
	}
	return AccessToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

// IssueRefreshToken returns a new raw refresh token. Persist only Digest(raw).
func (i *Issuer) IssueRefreshToken() (string, error) {
	return i.tokens.NewRawToken()
}

// Digest returns the stored form of a raw refresh token.
func (i *Issuer) Digest(raw string) string {
	return i.tokens.Digest(raw)
}

// Verify checks signature, algorithm, issuer and expiry.
// Every failure is reported as ErrInvalidToken.
func (i *Issuer) Verify(tokenString string, now time.Time) (Claims, error) {
	var c accessClaims
	_, err := jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(i.cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if c.Subject == "" || c.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		AccountID: c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		TokenID:   c.ID,
		Issuer:    c.Issuer,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	return out, nil
}

// AcceptUntil is the instant after which Verify rejects a token expiring at
// exp. Revocations must outlive it.
func (i *Issuer) AcceptUntil(exp time.Time) time.Time {
	return exp.Add(i.cfg.ClockSkew)
}

// ExpiresIn is the access-token lifetime in whole seconds.
func (i *Issuer) ExpiresIn() int64 {
	return int64(i.cfg.AccessTTL / time.Second)
}

// RefreshTTL is the lifetime of a new refresh session.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.cfg.RefreshTTL
}
