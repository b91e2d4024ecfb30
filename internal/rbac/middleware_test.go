package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"campaign-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", role))
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	cases := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"admin bypasses", RoleAdmin, []string{RoleSupervisor}, http.StatusOK},
		{"allowed role", RoleSupervisor, []string{RoleSupervisor}, http.StatusOK},
		{"analyst denied control", RoleAnalyst, []string{RoleSupervisor}, http.StatusForbidden},
		{"no identity", "", []string{RoleAnalyst}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := serveAs(tc.role, tc.allowed...); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestKnown(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleSupervisor, RoleAnalyst} {
		if !Known(r) {
			t.Errorf("%s should be known", r)
		}
	}
	if Known("super_admin") {
		t.Errorf("unexpected role accepted")
	}
}
