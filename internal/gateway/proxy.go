package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/identity"
	"github.com/nao1215/docgate/pkg/middleware"
	"go.uber.org/zap"
)

// proxyErrorKey はリクエストのコンテキストに転送エラーの格納先を保持するキー。
type proxyErrorKey struct{}

// forwarder は1つのルートのリクエストを上流APIへ転送する。
type forwarder struct {
	// route は転送対象のルート。
	route *Route
	// proxy は上流へのリバースプロキシ。
	proxy *httputil.ReverseProxy
	// origin はレスポンスに設定するCORSの許可オリジン。
	origin string
	// metrics は上流呼び出しの計測先。
	metrics *metrics
	// logger は構造化ロガー。
	logger *zap.Logger
}

// newUpstreamTransport は上流API用のトランスポートを生成する。
// レスポンスヘッダーの待ち時間をtimeoutで打ち切る。
func newUpstreamTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = timeout
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	return t
}

// newForwarder はルートの転送処理を生成する。
func newForwarder(route *Route, transport http.RoundTripper, origin string, m *metrics, logger *zap.Logger) *forwarder {
	f := &forwarder{route: route, origin: origin, metrics: m, logger: logger}
	f.proxy = &httputil.ReverseProxy{
		Rewrite:        f.rewrite,
		Transport:      transport,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.handleError,
		FlushInterval:  -1,
	}
	return f
}

// upstreamPath はプレフィックスを除いた上流側のパスを返す。
func upstreamPath(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// rewrite は上流へのリクエストを組み立てる。
// プレフィックスを除去し、Hostを上流に書き換え、利用者の認証情報を取り除く。
func (f *forwarder) rewrite(pr *httputil.ProxyRequest) {
	prefix := f.route.Prefix()
	pr.Out.URL.Path = upstreamPath(pr.In.URL.Path, prefix)
	if pr.In.URL.RawPath != "" {
		pr.Out.URL.RawPath = upstreamPath(pr.In.URL.RawPath, prefix)
	} else {
		pr.Out.URL.RawPath = ""
	}
	pr.SetURL(f.route.target)

	// セッショントークンを上流に渡さない
	pr.Out.Header.Del("Authorization")
	removeCookie(pr.Out, middleware.SessionCookieName)

	if f.route.inject != nil {
		id, _ := identity.FromContext(pr.In.Context())
		f.route.inject(pr.Out, id)
	}
}

// removeCookie はCookieヘッダーから指定した名前のクッキーを取り除く。
func removeCookie(r *http.Request, name string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name == name {
			continue
		}
		r.AddCookie(c)
	}
}

// modifyResponse は上流が返したCORSヘッダーを取り除く。
// ゲートウェイが設定した許可オリジンだけがクライアントに届く。
func (f *forwarder) modifyResponse(resp *http.Response) error {
	middleware.StripCORS(resp.Header)
	return nil
}

// handleError は転送エラーをリクエストに記録する。レスポンスはhandleで書き込む。
func (f *forwarder) handleError(_ http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(proxyErrorKey{}).(*error); ok {
		*slot = err
	}
}

// handle はGinハンドラとして転送を実行する。
func (f *forwarder) handle(c *gin.Context) {
	middleware.ApplyCORS(c.Writer.Header(), f.origin)

	var proxyErr error
	ctx := context.WithValue(c.Request.Context(), proxyErrorKey{}, &proxyErr)
	req := c.Request.WithContext(ctx)

	start := time.Now()
	f.proxy.ServeHTTP(c.Writer, req)
	f.metrics.observeUpstream(f.route.Spec.Prefix, time.Since(start))

	if proxyErr == nil {
		return
	}

	fields := []zap.Field{
		zap.String("route", f.route.Spec.Prefix),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(proxyErr),
	}
	switch {
	case errors.Is(c.Request.Context().Err(), context.Canceled):
		f.logger.Debug("クライアントが切断したため転送を中断", fields...)
		c.Abort()
	case isTimeout(proxyErr):
		f.logger.Warn("上流APIがタイムアウト", fields...)
		middleware.AbortWithError(c, http.StatusGatewayTimeout, middleware.CodeUpstreamTimeout,
			"上流APIが時間内に応答しませんでした")
	default:
		f.logger.Warn("上流APIへの転送に失敗", fields...)
		middleware.AbortWithError(c, http.StatusBadGateway, middleware.CodeUpstreamUnavailable,
			"上流APIに接続できませんでした")
	}
}

// isTimeout はタイムアウトによるエラーであればtrueを返す。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
