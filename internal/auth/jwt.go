// Package auth verifies bearer tokens issued by the identity service.
// Tokens are HS256 JWTs carrying the party id in "sub" and the party's
// role in "role".
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmylchreest/consult-billing/internal/models"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
	ErrInvalidRole   = errors.New("invalid role claim")
)

// Claims represents the claims in a consult-billing JWT.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
	Name string      `json:"name,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Verifier validates HS256 tokens with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSuffix(issuer, "/"),
		leeway: 30 * time.Second,
	}
}

// VerifyToken verifies a token and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	return claims, nil
}

// IssueToken signs a token for userID with the given role. It is used by
// the token CLI for local development and by tests.
func (v *Verifier) IssueToken(userID string, role models.Role, ttl time.Duration, now time.Time) (string, error) {
	if userID == "" {
		return "", ErrMissingClaims
	}
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
