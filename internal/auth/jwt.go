package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type UserRole string

const (
	RoleOwner   UserRole = "OWNER"
	RoleManager UserRole = "MANAGER"
	RoleCashier UserRole = "CASHIER"
	RoleKitchen UserRole = "KITCHEN"
)

// Claims identify a staff member and the single outlet the token is scoped
// to. Customers never hold one.
type Claims struct {
	UserID   string   `json:"userId"`
	Role     UserRole `json:"role"`
	OutletID int64    `json:"outletId"`
	Name     *string  `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func ParseBearerToken(authHeader string) string {
	parts := strings.Split(strings.TrimSpace(authHeader), " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func VerifyAccessToken(tokenString string, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token required")
	}
	if secret == "" {
		return nil, errors.New("token verification disabled")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, errors.New("token expired")
	}
	if claims.OutletID <= 0 || strings.TrimSpace(claims.UserID) == "" {
		return nil, errors.New("token is not scoped to an outlet")
	}
	if _, ok := rolePermissions[claims.Role]; !ok {
		return nil, errors.New("unknown role")
	}
	return claims, nil
}

// IssueAccessToken signs a staff token. The login flow lives elsewhere; this
// is used by tooling and tests.
func IssueAccessToken(secret, userID string, role UserRole, outletID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Role:     role,
		OutletID: outletID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
