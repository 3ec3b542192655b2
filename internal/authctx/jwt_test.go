package authctx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/authctx"
)

var testSecret = []byte("test-signing-secret")

func signClaims(t *testing.T, claims authctx.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func baseClaims(role authctx.Role) authctx.Claims {
	return authctx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrgID:      "org-1",
		ProjectIDs: []string{"proj-a", "proj-b"},
		Role:       role,
	}
}

func TestParseToken_Valid(t *testing.T) {
	signed := signClaims(t, baseClaims(authctx.RoleDeveloper))

	claims, err := authctx.ParseToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, authctx.RoleDeveloper, claims.Role)
	assert.Equal(t, []string{"proj-a", "proj-b"}, claims.ProjectIDs)
}

func TestParseToken_Expired(t *testing.T) {
	claims := baseClaims(authctx.RoleViewer)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	signed := signClaims(t, claims)

	_, err := authctx.ParseToken(signed, testSecret)
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeExpiredToken, appErr.Code)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := authctx.ParseToken("not-a-jwt-at-all", testSecret)
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeInvalidToken, appErr.Code)
}

func TestParseToken_WrongSigningMethod(t *testing.T) {
	claims := baseClaims(authctx.RoleAdmin)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = authctx.ParseToken(signed, testSecret)
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeInvalidToken, appErr.Code)
}

func TestParseToken_WrongSecret(t *testing.T) {
	signed := signClaims(t, baseClaims(authctx.RoleViewer))

	_, err := authctx.ParseToken(signed, []byte("a-different-secret"))
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeInvalidToken, appErr.Code)
}

func TestDefaultPermissions(t *testing.T) {
	assert.Equal(t, []string{"*"}, authctx.DefaultPermissions(authctx.RoleAdmin))
	assert.Contains(t, authctx.DefaultPermissions(authctx.RoleDeveloper), "write:evaluations")
	assert.Contains(t, authctx.DefaultPermissions(authctx.RoleViewer), "read:traces")
	assert.NotContains(t, authctx.DefaultPermissions(authctx.RoleViewer), "write:evaluations")
	assert.Equal(t, []string{"read:costs", "read:usage"}, authctx.DefaultPermissions(authctx.RoleBilling))
}

func TestHasPermission(t *testing.T) {
	admin := authctx.AuthContext{Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission("read:anything"))

	viewer := authctx.AuthContext{Permissions: []string{"read:traces"}}
	assert.True(t, viewer.HasPermission("read:traces"))
	assert.False(t, viewer.HasPermission("write:feedback"))
}

func TestRequireProjectAccess_AdminNoProject(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleAdmin}
	project, err := ac.RequireProjectAccess("")
	require.NoError(t, err)
	assert.Equal(t, "", project)
}

func TestRequireProjectAccess_AdminWithProject(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleAdmin}
	project, err := ac.RequireProjectAccess("proj-x")
	require.NoError(t, err)
	assert.Equal(t, "proj-x", project)
}

func TestRequireProjectAccess_NonAdminAllowedProject(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleViewer, ProjectIDs: []string{"proj-a", "proj-b"}}
	project, err := ac.RequireProjectAccess("proj-b")
	require.NoError(t, err)
	assert.Equal(t, "proj-b", project)
}

func TestRequireProjectAccess_NonAdminDisallowedProject(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleViewer, ProjectIDs: []string{"proj-a"}}
	_, err := ac.RequireProjectAccess("proj-z")
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeProjectNotAllowed, appErr.Code)
}

func TestRequireProjectAccess_NonAdminNoProjectFallsBackToFirst(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleDeveloper, ProjectIDs: []string{"proj-a", "proj-b"}}
	project, err := ac.RequireProjectAccess("")
	require.NoError(t, err)
	assert.Equal(t, "proj-a", project)
}

func TestRequireProjectAccess_NonAdminNoProjectsAtAll(t *testing.T) {
	ac := authctx.AuthContext{Role: authctx.RoleDeveloper}
	_, err := ac.RequireProjectAccess("")
	require.Error(t, err)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeProjectRequired, appErr.Code)
}

func TestWithAuthContext_RoundTrip(t *testing.T) {
	ac := authctx.AuthContext{UserID: "user-1", Role: authctx.RoleViewer}
	ctx := authctx.WithAuthContext(context.Background(), ac)

	got, ok := authctx.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ac, got)
}

func TestFromContext_Absent(t *testing.T) {
	_, ok := authctx.FromContext(context.Background())
	assert.False(t, ok)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	var captured error
	mw := authctx.Middleware(testSecret, func(w http.ResponseWriter, r *http.Request, err error) {
		captured = err
		w.WriteHeader(http.StatusUnauthorized)
	})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/traces", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	require.Error(t, captured)
	appErr := apperror.As(captured)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeMissingToken, appErr.Code)
}

func TestMiddleware_ValidTokenAttachesAuthContext(t *testing.T) {
	signed := signClaims(t, baseClaims(authctx.RoleDeveloper))

	mw := authctx.Middleware(testSecret, func(w http.ResponseWriter, r *http.Request, err error) {
		t.Fatalf("unexpected error: %v", err)
	})

	var gotAC authctx.AuthContext
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := authctx.AuthContextFromRequest(r)
		require.True(t, ok)
		gotAC = ac
	}))

	req := httptest.NewRequest(http.MethodGet, "/traces", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "user-1", gotAC.UserID)
	assert.Equal(t, authctx.RoleDeveloper, gotAC.Role)
	assert.Contains(t, gotAC.Permissions, "write:evaluations")
}
