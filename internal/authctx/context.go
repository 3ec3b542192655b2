package authctx

import (
	"context"
	"net/http"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
)

// AuthContext is the resolved principal for one request, attached to
// context.Context under an unexported key by the auth middleware.
type AuthContext struct {
	UserID      string
	OrgID       string
	ProjectIDs  []string
	Role        Role
	Permissions []string
}

// HasPermission reports whether p is granted, either explicitly or via the
// admin wildcard "*".
func (a AuthContext) HasPermission(p string) bool {
	for _, granted := range a.Permissions {
		if granted == "*" || granted == p {
			return true
		}
	}
	return false
}

func (a AuthContext) hasProject(projectID string) bool {
	for _, p := range a.ProjectIDs {
		if p == projectID {
			return true
		}
	}
	return false
}

// RequireProjectAccess resolves the effective project scope for this
// request against an optionally-specified project id:
//   - admin, no project specified        -> "" (wildcard, access all)
//   - admin, project specified            -> that project, allowed
//   - non-admin, project in their list     -> that project, allowed
//   - non-admin, project not in their list -> 403 forbidden
//   - non-admin, no project, non-empty list -> first accessible project
//   - non-admin, no project, empty list     -> 400 bad request
func (a AuthContext) RequireProjectAccess(projectID string) (string, error) {
	if a.Role == RoleAdmin {
		return projectID, nil
	}
	if projectID != "" {
		if !a.hasProject(projectID) {
			return "", apperror.New(apperror.CodeProjectNotAllowed, "project not accessible to this principal")
		}
		return projectID, nil
	}
	if len(a.ProjectIDs) == 0 {
		return "", apperror.New(apperror.CodeProjectRequired, "no accessible projects for this principal")
	}
	return a.ProjectIDs[0], nil
}

type contextKey struct{}

// WithAuthContext attaches ac to ctx under the package's unexported key.
func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext retrieves the AuthContext attached by the auth middleware, or
// ok=false if none is present.
func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// AuthContextFromRequest is the handler-facing accessor: retrieves the
// AuthContext attached to r's context.
func AuthContextFromRequest(r *http.Request) (AuthContext, bool) {
	return FromContext(r.Context())
}
