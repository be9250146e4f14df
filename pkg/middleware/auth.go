package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/identity"
	"github.com/nao1215/docgate/pkg/token"
	"go.uber.org/zap"
)

// SessionCookieName はセッショントークンを保持するクッキー名。
const SessionCookieName = "__session"

// bearerPrefix はAuthorizationヘッダーのスキーム。
const bearerPrefix = "Bearer "

// contextKeyIdentity はGinコンテキストにIdentityを格納するキー。
const contextKeyIdentity = "gateway.identity"

// TokenVerifier はセッショントークンを検証してクレームを返す。
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// IdentityEnricher は検証済みクレームからIdentityを確定する。
type IdentityEnricher interface {
	Enrich(ctx context.Context, claims *token.Claims) (*identity.Identity, error)
}

// ExtractCredential はリクエストからセッショントークンを取り出す。
// Authorizationヘッダーのベアラートークンを優先し、無ければ__sessionクッキーを使う。
func ExtractCredential(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		if raw := strings.TrimSpace(auth[len(bearerPrefix):]); raw != "" {
			return raw, true
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Authenticate はセッショントークンを検証し、利用者のIdentityを確定するGinミドルウェアを返す。
// 成功した場合、IdentityをGinコンテキストとリクエストのコンテキストの両方に設定する。
func Authenticate(verifier TokenVerifier, enricher IdentityEnricher, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		raw, ok := ExtractCredential(c.Request)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, CodeNoCredential, "認証が必要です")
			return
		}

		ctx := c.Request.Context()
		claims, err := verifier.Verify(ctx, raw)
		if err != nil {
			logger.Debug("トークンの検証に失敗",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
			message := "トークンが無効です"
			if errors.Is(err, token.ErrExpired) {
				message = "トークンの有効期限が切れています"
			}
			AbortWithError(c, http.StatusUnauthorized, CodeInvalidToken, message)
			return
		}

		id, err := enricher.Enrich(ctx, claims)
		if err != nil {
			logger.Warn("利用者情報の確定に失敗",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
			AbortWithError(c, http.StatusUnauthorized, CodeIdentityUnresolved, "利用者情報を確認できませんでした")
			return
		}

		c.Set(contextKeyIdentity, id)
		c.Request = c.Request.WithContext(identity.NewContext(ctx, id))
		c.Next()
	}
}

// GetIdentity はGinコンテキストからIdentityを取得する。
// Authenticateミドルウェアが事前に適用されている必要がある。
func GetIdentity(c *gin.Context) (*identity.Identity, bool) {
	if v, ok := c.Get(contextKeyIdentity); ok {
		if id, ok := v.(*identity.Identity); ok && id != nil {
			return id, true
		}
	}
	return identity.FromContext(c.Request.Context())
}
