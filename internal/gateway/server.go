package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/internal/apperror"
	"github.com/nao1215/stitch-tracker/internal/config"
	"github.com/nao1215/stitch-tracker/internal/metrics"
	"github.com/nao1215/stitch-tracker/internal/profile"
	"github.com/nao1215/stitch-tracker/pkg/httpclient"
	"github.com/nao1215/stitch-tracker/pkg/initdata"
	"github.com/nao1215/stitch-tracker/pkg/middleware"
	"github.com/nao1215/stitch-tracker/pkg/ratelimit"
)

const (
	// healthPath はヘルスチェックのパス。認証とレート制限の対象外。
	healthPath = "/api/health"
	// metricsPath はPrometheusメトリクスのパス。認証とレート制限の対象外。
	metricsPath = "/metrics"
	// shutdownTimeout は処理中のリクエストの完了を待つ上限。
	shutdownTimeout = 30 * time.Second
)

// Resource はゲートウェイの外で実装されるリソースのルート登録口。
// 登録されたハンドラは middleware.GetIdentity で呼び出し元IDを取得し、
// その呼び出し元の行だけを扱う。
type Resource interface {
	// Register は認証とレート制限を通過した /api グループにルートを登録する。
	Register(api *gin.RouterGroup)
}

// ResourceFunc は関数をResourceとして扱うアダプタ。
type ResourceFunc func(api *gin.RouterGroup)

// Register はf(api)を呼ぶ。
func (f ResourceFunc) Register(api *gin.RouterGroup) {
	f(api)
}

// Deps はServerの依存。
type Deps struct {
	// Config は設定。
	Config *config.Config
	// Logger はルートロガー。
	Logger zerolog.Logger
	// Verifier は起動データの検証器。
	Verifier *initdata.Verifier
	// Limiter はレートリミッタ。
	Limiter *ratelimit.Limiter
	// Profiles はプロフィールサービス。
	Profiles *profile.Service
	// Notifier は通知サービスのクライアント。nilの場合、通知APIは503を返す。
	Notifier *httpclient.Client
	// Metrics はメトリクス。nilの場合は記録も公開もしない。
	Metrics *metrics.Metrics
	// Resources は追加で登録するリソース。
	Resources []Resource
	// Now は現在時刻を返す。nilの場合は time.Now。
	Now func() time.Time
}

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は設定。
	cfg *config.Config
	// logger はハンドラのエラー記録に使う。
	logger zerolog.Logger
	// limiter はシャットダウン時に未完了のカウンタ書き込みを待つために保持する。
	limiter *ratelimit.Limiter
	// profiles はプロフィールサービス。
	profiles *profile.Service
	// notifier は通知サービスのクライアント。
	notifier *httpclient.Client
	// metrics はメトリクス。
	metrics *metrics.Metrics
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Verifier == nil || deps.Limiter == nil || deps.Profiles == nil {
		return nil, errors.New("Config, Verifier, Limiter, Profiles は必須です")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger.With().Str("component", "gateway").Logger()

	router := gin.New()
	// 末尾スラッシュ付きのパスもリダイレクトせず、認証を通してNoRouteで扱う
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.Metrics(deps.Metrics))
	router.Use(middleware.CORS(deps.Config.AllowedOrigins()))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Auth(middleware.AuthConfig{
		Verifier:  deps.Verifier,
		DevBypass: deps.Config.DevBypassEnabled(),
		SkipPaths: []string{healthPath, metricsPath},
		Logger:    logger,
		Failures:  deps.Metrics,
		Now:       now,
	}))
	router.Use(middleware.RateLimit(deps.Limiter, deps.Metrics, now))

	s := &Server{
		router:   router,
		cfg:      deps.Config,
		logger:   logger,
		limiter:  deps.Limiter,
		profiles: deps.Profiles,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
	}
	s.setupRoutes(deps.Resources)

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// キャンセル後は処理中のリクエストの完了と、未完了のレート制限カウンタの書き込みを待ってから戻る。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Gatewayサービスを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	s.limiter.Wait()
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(resources []Resource) {
	// ヘルスチェック（認証不要）
	s.router.GET(healthPath, s.handleHealth())

	if s.cfg.MetricsEnabled && s.metrics != nil {
		s.router.GET(metricsPath, gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		// プロフィール
		api.GET("/profile", s.handleGetProfile())
		api.PUT("/profile", s.handleUpsertProfile())
		api.POST("/profile", s.handleUpsertProfile())

		// 通知（通知サービスへ転送）
		api.POST("/notify/send", s.handleNotify("/send"))
		api.POST("/notify/schedule", s.handleNotify("/schedule"))
	}

	for _, r := range resources {
		r.Register(api)
	}

	s.router.NoRoute(func(c *gin.Context) {
		s.respondError(c, apperror.NotFound("Not found"))
	})
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"environment": s.cfg.Environment,
		})
	}
}

// handleGetProfile は呼び出し元のプロフィールを返すハンドラを返す。
// プロフィールが無い場合は null を返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.profiles.Get(c.Request.Context(), middleware.GetIdentity(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleUpsertProfile は呼び出し元のプロフィールを作成または部分更新するハンドラを返す。
func (s *Server) handleUpsertProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var fields profile.Fields
		if err := c.ShouldBindJSON(&fields); err != nil {
			s.respondError(c, apperror.ValidationFailed("Invalid JSON body"))
			return
		}

		p, err := s.profiles.Upsert(c.Request.Context(), middleware.GetIdentity(c), fields)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// respondError はエラーをステータスコードとJSONボディに変換して返す。
// 500の場合は詳細をログに残し、呼び出し元にはエラーメッセージだけを返す。
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperror.Status(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("identity", middleware.GetIdentity(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("リクエストの処理に失敗")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apperror.Body(err))
}
