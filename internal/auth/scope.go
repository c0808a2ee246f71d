// ABOUTME: Scope requirements and the authorization predicate shared by discovery and execution
// ABOUTME: IsVisible and Authorize must agree so tools/list and tools/call enforce the same policy

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Authorization errors. Unauthenticated failures are deliberately generic:
// they must not reveal which scopes a tool requires.
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidCredential = errors.New("invalid or expired credential")
)

// ScopeError reports the specific scopes an authenticated caller is missing.
// Only returned once authentication has already succeeded.
type ScopeError struct {
	Missing      []string
	RequireAdmin bool
}

func (e *ScopeError) Error() string {
	if e.RequireAdmin && len(e.Missing) == 0 {
		return "admin user required"
	}
	return fmt.Sprintf("missing required scopes: %s", strings.Join(e.Missing, ", "))
}

// ScopeRequirement declares what a caller must hold to see and invoke a tool.
// An empty requirement means the tool is publicly discoverable and callable.
type ScopeRequirement struct {
	AnyOf            []string `json:"anyOf,omitempty" yaml:"any_of"`
	AllOf            []string `json:"allOf,omitempty" yaml:"all_of"`
	Namespace        string   `json:"namespace,omitempty" yaml:"namespace"`
	Privileged       bool     `json:"privileged,omitempty" yaml:"privileged"`
	RequireAdminUser bool     `json:"requireAdminUser,omitempty" yaml:"require_admin_user"`
}

// IsPublic reports whether the requirement imposes no restrictions.
func (r *ScopeRequirement) IsPublic() bool {
	if r == nil {
		return true
	}
	return len(r.AnyOf) == 0 && len(r.AllOf) == 0 && !r.Privileged && !r.RequireAdminUser
}

// missingScopes returns the scopes the caller lacks. For AnyOf requirements
// the whole alternative set is reported when none of them is held.
func (r *ScopeRequirement) missingScopes(caller *CallerContext) []string {
	var missing []string
	for _, s := range r.AllOf {
		if !caller.HasScope(s) {
			missing = append(missing, s)
		}
	}
	if len(r.AnyOf) > 0 {
		satisfied := false
		for _, s := range r.AnyOf {
			if caller.HasScope(s) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, r.AnyOf...)
		}
	}
	return missing
}

// Authorizer evaluates scope requirements against resolved callers.
// The admin allow-list is matched by user id or email.
type Authorizer struct {
	admins map[string]struct{}
}

// NewAuthorizer creates an Authorizer with the configured admin allow-list.
func NewAuthorizer(adminUsers []string) *Authorizer {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, a := range adminUsers {
		admins[strings.ToLower(a)] = struct{}{}
	}
	return &Authorizer{admins: admins}
}

// IsAdmin reports whether the caller is in the admin allow-list.
func (a *Authorizer) IsAdmin(caller *CallerContext) bool {
	if caller.IsAnonymous() {
		return false
	}
	if _, ok := a.admins[strings.ToLower(caller.UserID)]; ok {
		return true
	}
	if caller.Email != "" {
		if _, ok := a.admins[strings.ToLower(caller.Email)]; ok {
			return true
		}
	}
	return false
}

// IsVisible reports whether the caller may discover a tool with the given
// requirement. Used identically for tools/list filtering and as the first
// check inside tools/call.
func (a *Authorizer) IsVisible(req *ScopeRequirement, caller *CallerContext) bool {
	if req.IsPublic() {
		return true
	}
	if caller.IsAnonymous() {
		return false
	}
	if len(req.missingScopes(caller)) > 0 {
		return false
	}
	if req.RequireAdminUser && !a.IsAdmin(caller) {
		return false
	}
	return true
}

// Authorize decides whether the caller may invoke a tool with the given
// requirement. hasCredential indicates whether the request carried a bearer
// credential at all; a credential that failed to resolve is a hard
// authentication error and must not leak scope requirements.
func (a *Authorizer) Authorize(req *ScopeRequirement, caller *CallerContext, hasCredential bool) error {
	if req.IsPublic() {
		return nil
	}

	if caller.IsAnonymous() {
		if hasCredential {
			return ErrInvalidCredential
		}
		return ErrAuthRequired
	}

	// Caller is known-valid: authenticated-but-forbidden errors may be specific.
	if missing := req.missingScopes(caller); len(missing) > 0 {
		return &ScopeError{Missing: missing}
	}
	if req.RequireAdminUser && !a.IsAdmin(caller) {
		return &ScopeError{RequireAdmin: true}
	}
	return nil
}
