package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName carries the session token for browser clients.
const CookieName = "agencyops_session"

const (
	RoleAdmin  = "ADMIN"
	RoleClient = "CLIENT"
)

const minSecretLen = 16

var ErrInvalidSession = errors.New("invalid or expired session")

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// CanAccessTenant reports whether the session may read tenant id.
func (c *Claims) CanAccessTenant(id string) bool {
	return c.IsAdmin() || (c.Role == RoleClient && c.TenantID != "" && c.TenantID == id)
}

// Sessions mints and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue returns a signed token for user. CLIENT sessions are bound to tenantID.
func (s *Sessions) Issue(user, role, tenantID string) (string, time.Time, error) {
	user = strings.TrimSpace(user)
	role = strings.ToUpper(strings.TrimSpace(role))
	if user == "" {
		return "", time.Time{}, errors.New("user is required")
	}
	switch role {
	case RoleAdmin:
		tenantID = ""
	case RoleClient:
		if strings.TrimSpace(tenantID) == "" {
			return "", time.Time{}, errors.New("CLIENT sessions require a tenant")
		}
	default:
		return "", time.Time{}, fmt.Errorf("unknown role %q (want %s or %s)", role, RoleAdmin, RoleClient)
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Role:     role,
		TenantID: tenantID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Role != RoleAdmin && claims.Role != RoleClient {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Cookie builds the session cookie for token.
func (s *Sessions) Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// tokenFromRequest reads the Authorization header first, then the cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
