// Package authz computes what an actor may see or do on a feedback ticket.
//
// Every rule is a function of the actor's role (with its optional category
// scope) and the ticket's category, submitter, assignee and status. Nothing
// here touches storage; callers load the ticket and pass it in.
package authz

import (
	"fmt"
	"strings"

	"collegefeedback/internal/models"
	contextutils "collegefeedback/internal/utils"
)

// Capability is a single permission on a ticket
type Capability uint16

const (
	CapView Capability = 1 << iota
	CapComment
	CapCommentInternal
	CapChangeStatus
	CapAssign
	CapRate
	CapResolve
	CapReopen
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapView, "view"},
	{CapComment, "comment"},
	{CapCommentInternal, "comment_internal"},
	{CapChangeStatus, "change_status"},
	{CapAssign, "assign"},
	{CapRate, "rate"},
	{CapResolve, "resolve"},
	{CapReopen, "reopen"},
}

// String returns the wire name of a single capability
func (c Capability) String() string {
	for _, cn := range capabilityNames {
		if cn.cap == c {
			return cn.name
		}
	}
	return fmt.Sprintf("capability(%d)", uint16(c))
}

// CapabilitySet is a bitmask of capabilities
type CapabilitySet uint16

// Has reports whether every capability in c is present
func (s CapabilitySet) Has(c Capability) bool {
	return CapabilitySet(c)&s == CapabilitySet(c)
}

// With returns the set extended by c
func (s CapabilitySet) With(c ...Capability) CapabilitySet {
	for _, one := range c {
		s |= CapabilitySet(one)
	}
	return s
}

// Names lists the capabilities in the set in a stable order
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, cn := range capabilityNames {
		if s.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	return names
}

// String renders the set for logs
func (s CapabilitySet) String() string {
	return "{" + strings.Join(s.Names(), ",") + "}"
}

// Actor is the authenticated user performing an action
type Actor struct {
	ID    int
	Email string
	Role  models.Role
	Scope models.CategoryScope
}

// ActorFromUser builds an Actor. A scope stored on a non category-admin is ignored.
func ActorFromUser(u *models.User) Actor {
	a := Actor{ID: u.ID, Email: u.Email, Role: u.Role}
	if u.Role == models.RoleCategoryAdmin {
		a.Scope = u.CategoryScope
	}
	return a
}

// IsAdmin reports whether the actor holds an admin role
func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// adminCapabilities is what an admin holds on any ticket within reach
var adminCapabilities = CapabilitySet(0).With(CapView, CapComment, CapCommentInternal, CapChangeStatus, CapAssign, CapResolve)

// Resolve returns the capability set the actor holds on the ticket.
// An unknown role resolves to the empty set.
func Resolve(actor Actor, t *models.Feedback) CapabilitySet {
	if t == nil {
		return 0
	}

	isSubmitter := actor.ID != 0 && t.SubmitterID == actor.ID
	var caps CapabilitySet

	switch actor.Role {
	case models.RoleStudent:
		if isSubmitter {
			caps = caps.With(CapView, CapComment)
		}
	case models.RoleCategoryAdmin:
		if actor.Scope.Matches(t.CategoryName) || t.IsAssignedTo(actor.ID) {
			caps = caps | adminCapabilities
		} else if isSubmitter {
			caps = caps.With(CapView, CapComment)
		}
	case models.RoleSuperAdmin:
		caps = caps | adminCapabilities
	default:
		return 0
	}

	if isSubmitter && t.Status == models.StatusResolved {
		caps = caps.With(CapRate)
	}

	// Reopen belongs to the submitter and to admins who can reach the ticket
	if t.Status.IsTerminal() && (isSubmitter || (actor.IsAdmin() && caps.Has(CapChangeStatus))) {
		caps = caps.With(CapReopen)
	}

	return caps
}

// Require returns a PermissionDenied error unless the actor holds c on the ticket
func Require(actor Actor, t *models.Feedback, c Capability) error {
	if Resolve(actor, t).Has(c) {
		return nil
	}
	return Denied(actor, t, c)
}

// Denied builds the PermissionDenied error for a failed capability check
func Denied(actor Actor, t *models.Feedback, c Capability) error {
	ticketID := 0
	if t != nil {
		ticketID = t.ID
	}
	return contextutils.WrapErrorf(contextutils.ErrForbidden,
		"user %d (%s) lacks %s on feedback %d", actor.ID, actor.Role, c, ticketID)
}

// CanSeeSubmitter reports whether the submitter identity of an anonymous ticket is revealed to the actor
func CanSeeSubmitter(actor Actor, t *models.Feedback) bool {
	if !t.IsAnonymous {
		return true
	}
	return actor.ID == t.SubmitterID || actor.Role == models.RoleSuperAdmin
}

// CanManageUsers reports whether the actor may change roles, scopes and categories
func CanManageUsers(actor Actor) bool {
	return actor.Role == models.RoleSuperAdmin
}

// ListScope describes, as data, which tickets an actor may list. The
// persistence layer turns it into a WHERE clause that mirrors Resolve's
// CapView rule.
type ListScope struct {
	// All is set for super admins
	All bool
	// SubmitterID admits tickets the actor submitted
	SubmitterID int
	// Category admits tickets whose category name matches, case-insensitively
	Category models.CategoryScope
	// AssigneeID admits tickets assigned to the actor
	AssigneeID int
	// None is set when the actor may not list anything
	None bool
}

// ScopeFor returns the listing scope of an actor
func ScopeFor(actor Actor) ListScope {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return ListScope{All: true}
	case models.RoleCategoryAdmin:
		return ListScope{SubmitterID: actor.ID, Category: actor.Scope, AssigneeID: actor.ID}
	case models.RoleStudent:
		return ListScope{SubmitterID: actor.ID}
	default:
		return ListScope{None: true}
	}
}

// Admits reports whether a ticket falls inside the scope; it must agree with Resolve's CapView.
func (s ListScope) Admits(t *models.Feedback) bool {
	switch {
	case s.None:
		return false
	case s.All:
		return true
	}
	if s.SubmitterID != 0 && t.SubmitterID == s.SubmitterID {
		return true
	}
	if s.Category.Matches(t.CategoryName) {
		return true
	}
	return s.AssigneeID != 0 && t.IsAssignedTo(s.AssigneeID)
}
