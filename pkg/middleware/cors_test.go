package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

const testOrigin = "https://docs.example.com"

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(CORS(testOrigin))
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		router.GET("/denied", func(c *gin.Context) {
			AbortWithError(c, http.StatusForbidden, CodeUpgradeRequired, "denied")
		})
		return router
	}

	tests := []struct {
		name   string
		origin string
	}{
		{name: "設定済みのオリジン", origin: testOrigin},
		{name: "別のオリジン", origin: "https://evil.example.com"},
		{name: "Originヘッダーなし", origin: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name+"でも常に設定済みのオリジンと資格情報の許可が返ること", func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newRouter().ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			if got := w.Header().Values("Access-Control-Allow-Origin"); len(got) != 1 || got[0] != testOrigin {
				t.Errorf("Access-Control-Allow-Origin = %v, want [%q]", got, testOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
			}
			if got := w.Header().Get("Access-Control-Expose-Headers"); got != "set-cookie" {
				t.Errorf("Access-Control-Expose-Headers = %q, want %q", got, "set-cookie")
			}
		})
	}

	t.Run("拒否レスポンスにもCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/denied", nil)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, testOrigin)
		}
	})

	t.Run("OPTIONSリクエストで204が返ること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(CORS(testOrigin))
		router.OPTIONS("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", testOrigin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, HEAD, PUT, PATCH, POST, DELETE" {
			t.Errorf("Access-Control-Allow-Methods = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type" {
			t.Errorf("Access-Control-Allow-Headers = %q, want %q", got, "Authorization, Content-Type")
		}
		if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
			t.Errorf("Access-Control-Max-Age = %q, want %q", got, "86400")
		}
	})

	t.Run("プリフライトで要求されたヘッダーを許可すること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(CORS(testOrigin))
		router.OPTIONS("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Access-Control-Request-Headers", "x-custom, authorization")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Headers"); got != "x-custom, authorization" {
			t.Errorf("Access-Control-Allow-Headers = %q, want %q", got, "x-custom, authorization")
		}
	})
}

// TestApplyCORS はApplyCORSとStripCORSを検証する。
func TestApplyCORS(t *testing.T) {
	t.Parallel()

	t.Run("複数回適用してもヘッダーが重複しないこと", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		ApplyCORS(h, testOrigin)
		ApplyCORS(h, testOrigin)

		if got := h.Values("Access-Control-Allow-Origin"); len(got) != 1 {
			t.Errorf("Access-Control-Allow-Origin = %v, want 1 value", got)
		}
		if got := h.Values("Vary"); len(got) != 1 || got[0] != "Origin" {
			t.Errorf("Vary = %v, want [Origin]", got)
		}
	})

	t.Run("上流のCORSヘッダーのみが削除されること", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET")
		h.Set("Content-Type", "application/json")
		StripCORS(h)

		if got := h.Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty string", got)
		}
		if got := h.Get("Access-Control-Allow-Methods"); got != "" {
			t.Errorf("Access-Control-Allow-Methods = %q, want empty string", got)
		}
		if got := h.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
	})
}
