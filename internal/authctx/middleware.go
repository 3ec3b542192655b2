package authctx

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
)

// ErrorResponder renders an apperror.Error (or any error) as the JSON error
// envelope. Handlers and middleware outside internal/httpapi accept it as a
// dependency rather than importing the HTTP layer, avoiding an import
// cycle.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Middleware validates the bearer token from the Authorization header and
// attaches the resulting AuthContext to the request context. Requests
// without a well-formed "Bearer <token>" header fail with
// apperror.CodeMissingToken.
func Middleware(secret []byte, respond ErrorResponder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || len(header) <= len(prefix) {
				respond(w, r, apperror.New(apperror.CodeMissingToken, "missing bearer token"))
				return
			}
			tokenString := strings.TrimPrefix(header, prefix)

			claims, err := ParseToken(tokenString, secret)
			if err != nil {
				respond(w, r, err)
				return
			}

			ac := AuthContext{
				UserID:      claims.Subject,
				OrgID:       claims.OrgID,
				ProjectIDs:  claims.ProjectIDs,
				Role:        claims.Role,
				Permissions: claims.effectivePermissions(),
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
		})
	}
}
