package authn

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// CanApprove reports whether the role may decide on pending bookings.
func (r Role) CanApprove() bool { return r == RoleStaff || r == RoleAdmin }

// Identity is the caller as established by a verified access token.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// Keys holds the shared HS256 secret and the issuer/audience tokens must carry.
type Keys struct {
	Secret   string
	Issuer   string
	Audience string
}

// Issue signs an access token for id. Used by dev tooling and tests; the
// campus identity provider issues real tokens with the same claims.
func (k Keys) Issue(id Identity, now time.Time, ttl time.Duration) (string, error) {
	if k.Secret == "" {
		return "", fmt.Errorf("missing signing secret")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    k.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(id.Role),
	}
	if k.Audience != "" {
		claims.Audience = jwt.ClaimStrings{k.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(k.Secret))
}

// Verify checks signature, expiry, issuer and audience, and returns the
// identity the token names.
func (k Keys) Verify(tokenString string, now time.Time) (*Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	if k.Secret == "" {
		return nil, fmt.Errorf("missing signing secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if k.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(k.Issuer))
	}
	if k.Audience != "" {
		opts = append(opts, jwt.WithAudience(k.Audience))
	}

	claims := &Claims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(k.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return nil, fmt.Errorf("missing subject in token")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: userID, Role: role}, nil
}
