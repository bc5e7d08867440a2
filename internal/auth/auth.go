// Package auth issues and validates the bearer tokens used by the HTTP API.
// Tokens are HS256 JWTs signed with a single shared secret taken from the
// environment; role names ride along as a custom claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "assettrack"
	secretEnv   = "ASSETTRACK_AUTH_SECRET"

	// issuedAtSkew tolerates minor clock drift between token issuer and verifier.
	issuedAtSkew = 5 * time.Second
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

var errMissingSecret = errors.New("auth secret is not configured")

// Claims carries the identity embedded in an API token.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

var signingSecret = struct {
	sync.Mutex
	value  []byte
	err    error
	loaded bool
}{}

func secretKey() ([]byte, error) {
	signingSecret.Lock()
	defer signingSecret.Unlock()
	if !signingSecret.loaded {
		raw := strings.TrimSpace(os.Getenv(secretEnv))
		if raw == "" {
			signingSecret.err = errMissingSecret
		} else {
			signingSecret.value = []byte(raw)
		}
		signingSecret.loaded = true
	}
	return signingSecret.value, signingSecret.err
}

// ResetSecretForTests drops the cached signing secret so tests can swap the
// environment variable between cases.
func ResetSecretForTests() {
	signingSecret.Lock()
	defer signingSecret.Unlock()
	signingSecret.value = nil
	signingSecret.err = nil
	signingSecret.loaded = false
}

// GenerateToken signs a token for userID with the given roles and lifetime.
func GenerateToken(userID string, roles []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	key, err := secretKey()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Roles: normalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate checks the signature and claims of a bearer token and
// returns its claims with roles normalized.
func ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := secretKey()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || checkClaims(claims) != nil {
		return nil, ErrInvalidToken
	}
	claims.Roles = normalizeRoles(claims.Roles)
	return claims, nil
}

func checkClaims(c *Claims) error {
	switch {
	case c.Issuer != tokenIssuer:
		return fmt.Errorf("unexpected issuer %q", c.Issuer)
	case strings.TrimSpace(c.Subject) == "":
		return errors.New("subject missing")
	case c.IssuedAt == nil || c.ExpiresAt == nil:
		return errors.New("timestamps missing")
	case c.ExpiresAt.Time.Before(c.IssuedAt.Time):
		return errors.New("expiry precedes issued-at")
	}
	now := time.Now().UTC()
	if now.After(c.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if c.IssuedAt.Time.After(now.Add(issuedAtSkew)) {
		return errors.New("token issued in the future")
	}
	return nil
}

// normalizeRoles lower-cases, trims and deduplicates role names, preserving
// first-seen order.
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := roles[:0:0]
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

type ctxKey int

const (
	userIDKey ctxKey = iota
	rolesKey
)

// ContextWithUser attaches the authenticated identity to ctx.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, normalizeRoles(roles))
	}
	return ctx
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RolesFromContext returns a copy of the normalized roles stored in ctx.
func RolesFromContext(ctx context.Context) []string {
	roles, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(roles) == 0 {
		return nil
	}
	return append([]string(nil), roles...)
}

// HasRole reports whether ctx carries the named role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
