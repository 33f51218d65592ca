/*
identity.go - External collaborator contracts for identity and roles

PURPOSE:
  The scheduling core does not manage sessions or permissions. It
  consumes these two contracts, supplied by the deployment:
  - IdentityProvider: which member is making this request
  - RoleChecker: which administrative roles the member holds

  HeaderIdentity and StaticRoles are minimal implementations for
  development and tests; production wires the real session layer here.
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/leave-scheduler/schedule"
)

// IdentityProvider resolves the acting member for a request.
// ok is false when no member context exists (unauthenticated).
type IdentityProvider interface {
	CurrentMember(r *http.Request) (schedule.MemberID, bool)
}

// Roles are the administrative capabilities a member may hold.
type Roles struct {
	IsDivisionAdmin    bool
	IsUnionAdmin       bool
	IsApplicationAdmin bool
}

// Admin reports whether any administrative capability is present.
func (r Roles) Admin() bool {
	return r.IsDivisionAdmin || r.IsUnionAdmin || r.IsApplicationAdmin
}

// RoleChecker resolves a member's roles.
type RoleChecker interface {
	Roles(ctx context.Context, id schedule.MemberID) (Roles, error)
}

// =============================================================================
// DEVELOPMENT IMPLEMENTATIONS
// =============================================================================

// HeaderIdentity trusts an X-Member-ID header. Development only; a real
// deployment replaces this with the session provider.
type HeaderIdentity struct{}

func (HeaderIdentity) CurrentMember(r *http.Request) (schedule.MemberID, bool) {
	id := r.Header.Get("X-Member-ID")
	if id == "" {
		return "", false
	}
	return schedule.MemberID(id), true
}

// StaticRoles grants a fixed role set to listed member ids.
type StaticRoles struct {
	Admins map[schedule.MemberID]Roles
}

func (s StaticRoles) Roles(_ context.Context, id schedule.MemberID) (Roles, error) {
	return s.Admins[id], nil
}
