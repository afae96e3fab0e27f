// Package authgate issues and validates the JWTs CTT's (unimplemented
// here) HTTP transport would use to protect /api and /login, per
// spec.md §6. Claim semantics and role resolution are ported from
// original_source/src/auth.rs's RoleGuard/check_role; the munge-based
// login transport itself is out of scope.
package authgate

import (
	"fmt"
	"os/user"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is one of the two access levels spec.md §6 names.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleGuest Role = "Guest"
)

// Claims is the JWT payload CTT issues: {role, user, exp}, matching
// spec.md §6 and original_source/src/auth.rs's RoleGuard.
type Claims struct {
	Role Role   `json:"role"`
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Gate signs and verifies tokens with a single HMAC key. The key is
// regenerated every process start (spec.md §9 DESIGN NOTES: "tokens do
// not survive restart"), so Gate must be constructed once at daemon
// startup and shared.
type Gate struct {
	key []byte
}

// New builds a Gate with a fresh random signing key.
func New() (*Gate, error) {
	key, err := randomKey(64)
	if err != nil {
		return nil, fmt.Errorf("authgate: generating signing key: %w", err)
	}
	return &Gate{key: key}, nil
}

// Issue signs a token for user with role, expiring after ttl.
func (g *Gate) Issue(userName string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		User: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("authgate: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning its claims.
// Expiry is enforced by the jwt library; a token signed by a previous
// process's key (or any forged token) fails signature verification.
func (g *Gate) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authgate: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("authgate: token failed validation")
	}
	return claims, nil
}

// RoleResolver maps an authenticated identity to a Role, or reports
// that the identity has neither role.
type RoleResolver interface {
	Resolve(userName string) (Role, bool)
}

// GroupRoleResolver grants Admin or Guest based on OS group membership,
// ported from original_source/src/auth.rs's check_role: admin groups are
// checked before guest groups, so a user in both is granted Admin.
type GroupRoleResolver struct {
	Admin []string
	Guest []string
}

// Resolve looks up userName's OS group memberships and checks them
// against the configured admin and guest group lists in that order.
func (r GroupRoleResolver) Resolve(userName string) (Role, bool) {
	u, err := user.Lookup(userName)
	if err != nil {
		return "", false
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return "", false
	}
	groups := make(map[string]struct{}, len(groupIDs))
	for _, gid := range groupIDs {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		groups[g.Name] = struct{}{}
	}
	if anyMember(groups, r.Admin) {
		return RoleAdmin, true
	}
	if anyMember(groups, r.Guest) {
		return RoleGuest, true
	}
	return "", false
}

func anyMember(groups map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := groups[n]; ok {
			return true
		}
	}
	return false
}

var _ RoleResolver = GroupRoleResolver{}
