package middleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorCode は拒否理由を表す機械可読なコード。
type ErrorCode string

const (
	// CodeNoCredential は認証情報が無い場合のコード（401）。
	CodeNoCredential ErrorCode = "no_credential"
	// CodeInvalidToken はトークンの検証に失敗した場合のコード（401）。
	CodeInvalidToken ErrorCode = "invalid_token"
	// CodeIdentityUnresolved は利用者情報を確定できなかった場合のコード（401）。
	CodeIdentityUnresolved ErrorCode = "identity_unresolved"
	// CodeUpgradeRequired は上位プランが必要な場合のコード（403）。
	CodeUpgradeRequired ErrorCode = "upgrade_required"
	// CodeSecretNotProvisioned は組織のシークレットが未設定の場合のコード（500）。
	CodeSecretNotProvisioned ErrorCode = "secret_not_provisioned"
	// CodeUpstreamUnavailable は上流APIに到達できない場合のコード（502）。
	CodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	// CodeUpstreamTimeout は上流APIがタイムアウトした場合のコード（504）。
	CodeUpstreamTimeout ErrorCode = "upstream_timeout"
	// CodeRouteNotFound はルートが存在しない場合のコード（404）。
	CodeRouteNotFound ErrorCode = "route_not_found"
	// CodeInternal はパニックなど内部エラーのコード（500）。
	CodeInternal ErrorCode = "internal_error"
)

// ErrorResponse は拒否レスポンスのボディ。
type ErrorResponse struct {
	// Error は拒否理由のコード。
	Error ErrorCode `json:"error"`
	// Message は利用者向けの説明。
	Message string `json:"message"`
}

// contextKeyErrorCode はGinコンテキストに拒否コードを格納するキー。
const contextKeyErrorCode = "gateway.error_code"

// AbortWithError はリクエストを中断し、拒否レスポンスを書き込む。
// コードはGinコンテキストに記録され、ログやメトリクスから参照できる。
func AbortWithError(c *gin.Context, status int, code ErrorCode, message string) {
	c.Set(contextKeyErrorCode, code)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// ErrorCodeFrom はAbortWithErrorで記録された拒否コードを返す。
func ErrorCodeFrom(c *gin.Context) (ErrorCode, bool) {
	v, ok := c.Get(contextKeyErrorCode)
	if !ok {
		return "", false
	}
	code, ok := v.(ErrorCode)
	return code, ok
}
