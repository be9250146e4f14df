package gateway

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/middleware"
	"go.uber.org/zap"
)

// auditWriteTimeout は監査イベント1件の書き込みタイムアウト。
const auditWriteTimeout = 2 * time.Second

// observe はルートごとの判定結果をメトリクスと監査ログに記録するGinミドルウェアを返す。
// 利用者のメールアドレスやトークンは記録しない。
func (s *Server) observe(route *Route) gin.HandlerFunc {
	prefix := route.Prefix()

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code, rejected := middleware.ErrorCodeFrom(c)
		outcome := outcomeForwarded
		if rejected {
			outcome = string(code)
		}
		s.metrics.observeRequest(prefix, outcome)

		if s.audit == nil {
			return
		}

		var (
			ev  *event.Event
			err error
		)
		requestID := middleware.GetRequestID(c)
		if rejected {
			ev, err = event.New(requestID, prefix, event.TypeAccessRejected, event.RejectedData{
				Method: c.Request.Method,
				Path:   c.Request.URL.Path,
				Status: c.Writer.Status(),
				Code:   string(code),
			})
		} else {
			ev, err = event.New(requestID, prefix, event.TypeAccessForwarded, event.ForwardedData{
				Method:     c.Request.Method,
				Path:       upstreamPath(c.Request.URL.Path, prefix),
				Status:     c.Writer.Status(),
				DurationMS: time.Since(start).Milliseconds(),
			})
		}
		if err != nil {
			s.logger.Warn("監査イベントの生成に失敗", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditWriteTimeout)
		defer cancel()
		if err := s.audit.Record(ctx, ev); err != nil {
			s.logger.Warn("監査イベントの記録に失敗",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}
}
