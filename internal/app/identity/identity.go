// Package identity carries the authenticated caller through commands and queries. Identity is
// always passed explicitly; nothing reads a global "current user".
package identity

import (
	"context"
	"strings"

	"bazaar/internal/domain/shared/errs"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

var (
	ErrUnauthenticated = errs.New(errs.Forbidden, "identity: authentication required")
	ErrForbidden       = errs.New(errs.Forbidden, "identity: insufficient role")
)

type Principal struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.UserID) != ""
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// CanModerate reports whether the principal may resolve or dismiss reports.
func (p Principal) CanModerate() bool {
	return p.HasRole(RoleModerator) || p.HasRole(RoleAdmin)
}

// Acting is implemented by every command and query issued on behalf of a user.
type Acting interface {
	ActingPrincipal() Principal
}

// Moderated is implemented by messages that require a moderator.
type Moderated interface {
	RequiresModerator() bool
}

// Authorizer enforces authentication and the moderator role on bus messages.
type Authorizer struct{}

func (Authorizer) Authorize(_ context.Context, message any) error {
	acting, ok := message.(Acting)
	if !ok {
		return nil
	}
	p := acting.ActingPrincipal()
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if m, ok := message.(Moderated); ok && m.RequiresModerator() && !p.CanModerate() {
		return ErrForbidden
	}
	return nil
}
