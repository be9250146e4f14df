package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/docgate/pkg/clerk"
	"github.com/nao1215/docgate/pkg/keyset"
	"github.com/nao1215/docgate/pkg/middleware"
	"github.com/nao1215/docgate/pkg/secret"
	"github.com/nao1215/docgate/pkg/token"
	"go.uber.org/zap"
)

const (
	// serviceVersion はステータス文書に表示するバージョン。
	serviceVersion = "1.0.0"
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 10 * time.Second
	// readHeaderTimeout はリクエストヘッダーの読み取りタイムアウト。
	readHeaderTimeout = 10 * time.Second
)

// Dependencies はServerが使用する外部コンポーネント。
// テストではスタブに差し替える。
type Dependencies struct {
	// Verifier はセッショントークンの検証器。
	Verifier middleware.TokenVerifier
	// Enricher はIdentityの補完器。
	Enricher middleware.IdentityEnricher
	// Secrets は組織シークレットの対応表。nilの場合は空として扱う。
	Secrets *secret.Store
	// Routes はルート定義。nilの場合はDefaultRoutesを使う。
	Routes []RouteSpec
	// Audit は監査ログ。nilの場合は記録しない。
	Audit *AuditLog
	// Transport は上流API用のトランスポート。nilの場合はUpstreamTimeoutを設定したものを使う。
	Transport http.RoundTripper
}

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバーの設定。
	cfg *Config
	// registry はルート表。
	registry *Registry
	// metrics はPrometheusメトリクス。
	metrics *metrics
	// audit は監査ログ。nilの場合は記録しない。
	audit *AuditLog
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は設定から本番用の依存関係を組み立ててServerを生成する。
func NewServer(ctx context.Context, cfg *Config, logger *zap.Logger) (*Server, error) {
	routes := DefaultRoutes()
	if cfg.RoutesFile != "" {
		loaded, err := LoadRoutes(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		routes = loaded
	}

	resolver := keyset.New(cfg.ClerkJWKSURL,
		keyset.WithHTTPClient(&http.Client{Timeout: cfg.IDPTimeout}),
		keyset.WithMinRefreshInterval(cfg.JWKSMinRefresh),
		keyset.WithLogger(logger),
	)

	deps := Dependencies{
		Verifier: token.NewVerifier(resolver),
		Enricher: clerk.NewEnricher(clerk.NewClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey, cfg.IDPTimeout), logger),
		Secrets:  secret.FromEnviron(os.Environ(), Providers(routes)),
		Routes:   routes,
	}

	if cfg.AuditDBPath != "" {
		audit, err := OpenAudit(ctx, cfg.AuditDBPath, logger)
		if err != nil {
			return nil, err
		}
		deps.Audit = audit
	}

	s, err := New(cfg, deps, logger)
	if err != nil && deps.Audit != nil {
		_ = deps.Audit.Close()
	}
	return s, err
}

// New は依存関係を指定してServerを生成する。
func New(cfg *Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("設定がありません")
	}
	if deps.Verifier == nil || deps.Enricher == nil {
		return nil, errors.New("トークン検証器とIdentity補完器は必須です")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	routes := deps.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}

	secrets := deps.Secrets
	if secrets == nil {
		secrets = secret.NewStore(nil)
	}

	registry, err := NewRegistry(routes, secrets)
	if err != nil {
		return nil, fmt.Errorf("ルート表の構築に失敗: %w", err)
	}

	transport := deps.Transport
	if transport == nil {
		transport = newUpstreamTransport(cfg.UpstreamTimeout)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.FrontendURL))

	s := &Server{
		router:   router,
		cfg:      cfg,
		registry: registry,
		metrics:  newMetrics(),
		audit:    deps.Audit,
		logger:   logger,
	}
	s.setupRoutes(deps, transport)

	for _, r := range registry.Routes() {
		logger.Info("ルートを登録",
			zap.String("prefix", r.Spec.Prefix),
			zap.String("upstream", r.Spec.Upstream),
			zap.String("role", string(r.Spec.Role)),
		)
	}
	// 値は出力せず、シークレットが設定された組織ドメインだけを記録する
	logger.Info("組織シークレットを読み込み", zap.Strings("domains", secrets.Domains()))
	return s, nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes(deps Dependencies, transport http.RoundTripper) {
	s.router.GET("/", s.handleStatus())
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.handler()))

	authenticate := middleware.Authenticate(deps.Verifier, deps.Enricher, s.logger)
	for _, route := range s.registry.Routes() {
		fwd := newForwarder(route, transport, s.cfg.FrontendURL, s.metrics, s.logger)

		chain := []gin.HandlerFunc{
			s.observe(route),
			authenticate,
			middleware.RequireRole(route.Spec.Role),
		}
		chain = append(chain, route.preProxy...)
		chain = append(chain, fwd.handle)

		// プレフィックスそのものへのリクエストも同じ経路で上流の/へ転送する
		s.router.Any(route.Prefix(), chain...)
		s.router.Any(route.Prefix()+"/*path", chain...)
	}

	s.router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, http.StatusNotFound, middleware.CodeRouteNotFound, "ルートが見つかりません")
	})
}

// handleStatus は稼働状態と公開ルートの一覧を返すハンドラを返す。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoints := make(map[string]string)
		for _, r := range s.registry.Routes() {
			desc := r.Spec.Description
			if desc == "" {
				desc = r.Spec.Upstream
			}
			endpoints[r.Spec.Prefix] = fmt.Sprintf("%s (%s access required)", desc, r.Spec.Role)
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "Docs gateway is running",
			"version":   serviceVersion,
			"endpoints": endpoints,
		})
	}
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ゲートウェイを起動", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("ゲートウェイを停止")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	if s.audit != nil {
		return s.audit.Close()
	}
	return nil
}
