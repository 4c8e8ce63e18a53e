package iap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim IAP puts on every assertion.
const DefaultIssuer = "https://cloud.google.com/iap"

var (
	// ErrInvalidAssertion is returned for any signature or claim failure.
	ErrInvalidAssertion = errors.New("iap: invalid assertion")
	// ErrMissingClaims is returned when email or sub are absent.
	ErrMissingClaims = errors.New("iap: assertion lacks email or sub")
)

// AudienceSource yields the expected aud claim.
type AudienceSource interface {
	Audience(ctx context.Context) (string, error)
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Verifier checks IAP assertions.
type Verifier struct {
	keys     *KeySet
	audience AudienceSource
	issuer   string
	leeway   time.Duration
}

// NewVerifier constructs a Verifier.
func NewVerifier(keys *KeySet, audience AudienceSource, issuer string) *Verifier {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{keys: keys, audience: audience, issuer: issuer, leeway: 30 * time.Second}
}

// Verify validates signature, audience, issuer and expiry, and returns the
// asserted identity.
func (v *Verifier) Verify(ctx context.Context, assertion string) (Identity, error) {
	aud, err := v.audience.Audience(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("iap: resolve audience: %w", err)
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(assertion, parsed, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(aud),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidAssertion, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidAssertion
	}
	if parsed.Email == "" || parsed.Subject == "" {
		return Identity{}, ErrMissingClaims
	}
	return Identity{Email: parsed.Email, Subject: parsed.Subject}, nil
}
