package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/identity"
)

// TestAuthorize はAuthorizeを検証する。
func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       *identity.Identity
		required identity.Role
		wantErr  error
	}{
		{name: "basicルートにbasic", id: &identity.Identity{Role: identity.RoleBasic}, required: identity.RoleBasic},
		{name: "basicルートにpaid", id: &identity.Identity{Role: identity.RolePaid}, required: identity.RoleBasic},
		{name: "paidルートにpaid", id: &identity.Identity{Role: identity.RolePaid}, required: identity.RolePaid},
		{name: "paidルートにbasic", id: &identity.Identity{Role: identity.RoleBasic}, required: identity.RolePaid, wantErr: ErrUpgradeRequired},
		{name: "paidルートに未知のロール", id: &identity.Identity{Role: identity.Role("admin")}, required: identity.RolePaid, wantErr: ErrUpgradeRequired},
		{name: "Identityなし", id: nil, required: identity.RoleBasic, wantErr: ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Authorize(tt.id, tt.required)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Authorize()でエラーが発生: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authorize()のエラー = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestRequireRole はRequireRoleミドルウェアを検証する。
func TestRequireRole(t *testing.T) {
	t.Parallel()

	newRouter := func(id *identity.Identity, required identity.Role) *gin.Engine {
		router := gin.New()
		router.GET("/api", func(c *gin.Context) {
			if id != nil {
				c.Set(contextKeyIdentity, id)
			}
			c.Next()
		}, RequireRole(required), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("basic利用者がpaidルートにアクセスすると403 upgrade_requiredを返すこと", func(t *testing.T) {
		t.Parallel()

		router := newRouter(&identity.Identity{Role: identity.RoleBasic}, identity.RolePaid)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if body := decodeError(t, w); body.Error != CodeUpgradeRequired {
			t.Errorf("error = %q, want %q", body.Error, CodeUpgradeRequired)
		}
	})

	t.Run("paid利用者はpaidルートを通過すること", func(t *testing.T) {
		t.Parallel()

		router := newRouter(&identity.Identity{Role: identity.RolePaid}, identity.RolePaid)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("Identityが無い場合は401を返すこと", func(t *testing.T) {
		t.Parallel()

		router := newRouter(nil, identity.RoleBasic)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
