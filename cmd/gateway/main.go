// API Gatewayサービスのエントリポイント。
// Telegramの起動データによる認証、呼び出し元ごとのレート制限、
// プロフィールAPIと通知サービスへの転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/internal/config"
	"github.com/nao1215/stitch-tracker/internal/gateway"
	"github.com/nao1215/stitch-tracker/internal/metrics"
	"github.com/nao1215/stitch-tracker/internal/profile"
	"github.com/nao1215/stitch-tracker/internal/store"
	"github.com/nao1215/stitch-tracker/pkg/httpclient"
	"github.com/nao1215/stitch-tracker/pkg/initdata"
	"github.com/nao1215/stitch-tracker/pkg/kv"
	"github.com/nao1215/stitch-tracker/pkg/ratelimit"
)

// notificationBurst は通知サービスへの転送で許すバースト数。
const notificationBurst = 10

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Gatewayサービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabasePath != store.MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
			return fmt.Errorf("データディレクトリの作成に失敗: %w", err)
		}
	}
	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var cache kv.Store
	if cfg.RedisURL != "" {
		rs, err := kv.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rs.Close()
		cache = rs
	} else {
		logger.Warn().Msg("REDIS_URLが未設定のため、プロセス内のKVストアを使用します")
		cache = kv.NewMemoryStore()
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	limiter := ratelimit.New(kv.Namespace(cache, "rate"), cfg.RateLimitPolicy(), logger)
	profiles := profile.NewService(
		profile.NewRepository(db),
		kv.Namespace(cache, "profile"),
		cfg.ProfileCacheTTL,
		logger,
		profile.WithMetrics(m),
	)

	var notifier *httpclient.Client
	if cfg.NotificationURL != "" {
		auth := httpclient.WithSharedSecret(cfg.NotificationSecret)
		if cfg.NotificationSignedToken {
			auth = httpclient.WithServiceToken(cfg.NotificationSecret)
		}
		notifier = httpclient.New(cfg.NotificationURL,
			auth,
			httpclient.WithRateLimit(cfg.NotificationRPS, notificationBurst),
		)
	} else {
		logger.Warn().Msg("NOTIFICATION_URLが未設定のため、通知APIは503を返します")
	}

	if cfg.DevBypassEnabled() {
		logger.Warn().Msg("開発用の認証バイパスが有効です")
	}

	server, err := gateway.NewServer(gateway.Deps{
		Config:   cfg,
		Logger:   logger,
		Verifier: initdata.NewVerifier(cfg.BotToken, cfg.InitDataMaxAge),
		Limiter:  limiter,
		Profiles: profiles,
		Notifier: notifier,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}

	return server.Run(ctx)
}

// newLogger は設定に応じたロガーを生成する。本番以外では人が読みやすい形式で出力する。
func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Production {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(cfg.Level()).With().
		Timestamp().
		Str("service", "gateway").
		Str("environment", cfg.Environment).
		Logger()
}
