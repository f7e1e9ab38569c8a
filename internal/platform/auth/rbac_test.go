package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRequireRole(t *testing.T, userRoles []string, required ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/P001", nil)
	req = req.WithContext(WithUser(req.Context(), "u1", userRoles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole(required...)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	return h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := runRequireRole(t, []string{RoleClinician}, RoleClinician); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := runRequireRole(t, []string{RoleAdmin}, "records-officer"); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	err := runRequireRole(t, []string{"viewer"}, RoleClinician)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	if err := runRequireRole(t, nil, RoleClinician); err == nil {
		t.Error("expected error when user has no roles")
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/api/v1/patients") {
		t.Error("expected /api/v1/patients to require auth")
	}
}
