package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerExposeHeaders    = "Access-Control-Expose-Headers"
	headerMaxAge           = "Access-Control-Max-Age"
	headerRequestHeaders   = "Access-Control-Request-Headers"
)

// ApplyCORS はレスポンスヘッダーに許可オリジンと資格情報の許可を設定する。
// リクエストのOriginに関係なく、常に設定済みのオリジンを返す。
func ApplyCORS(h http.Header, origin string) {
	h.Set(headerAllowOrigin, origin)
	h.Set(headerAllowCredentials, "true")
	h.Set(headerExposeHeaders, "set-cookie")
	if !strings.Contains(h.Get("Vary"), "Origin") {
		h.Add("Vary", "Origin")
	}
}

// StripCORS は上流APIが返したCORSヘッダーを削除する。
func StripCORS(h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "Access-Control-") {
			delete(h, name)
		}
	}
}

// CORS はフロントエンドのオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// 拒否レスポンスを含む全てのレスポンスにCORSヘッダーを設定し、
// プリフライトリクエストには認証を行わずに204を返す。
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ApplyCORS(c.Writer.Header(), origin)

		if c.Request.Method == http.MethodOptions {
			c.Header(headerAllowMethods, "GET, HEAD, PUT, PATCH, POST, DELETE")
			if requested := c.GetHeader(headerRequestHeaders); requested != "" {
				c.Header(headerAllowHeaders, requested)
			} else {
				c.Header(headerAllowHeaders, "Authorization, Content-Type")
			}
			c.Header(headerMaxAge, "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
