package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/identity"
)

var (
	// ErrUnauthenticated はIdentityが確定していない場合に返される。
	ErrUnauthenticated = errors.New("認証されていません")
	// ErrUpgradeRequired は要求されたロールを満たさない場合に返される。
	ErrUpgradeRequired = errors.New("上位プランへのアップグレードが必要です")
)

// Authorize はIdentityが要求ロールを満たすか判定する。
// paidを要求するルートはpaid以外を全て拒否し、basicのルートは認証済みなら許可する。
func Authorize(id *identity.Identity, required identity.Role) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !id.Role.Satisfies(required) {
		return ErrUpgradeRequired
	}
	return nil
}

// RequireRole は要求ロールを満たさないリクエストを拒否するGinミドルウェアを返す。
func RequireRole(required identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := GetIdentity(c)
		switch err := Authorize(id, required); {
		case errors.Is(err, ErrUnauthenticated):
			AbortWithError(c, http.StatusUnauthorized, CodeNoCredential, "認証が必要です")
			return
		case errors.Is(err, ErrUpgradeRequired):
			AbortWithError(c, http.StatusForbidden, CodeUpgradeRequired,
				"このAPIは有料プランが必要です。アカウントをアップグレードしてください。")
			return
		}
		c.Next()
	}
}
