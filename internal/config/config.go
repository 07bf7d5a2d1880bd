// Package config はゲートウェイの設定を環境変数から読み込む。
//
// 任意の .env ファイルをgodotenvで読み込んだ後、envdecodeで型付きの Config に展開する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/pkg/ratelimit"
)

// DefaultAllowedOrigins はALLOWED_ORIGINSが未設定の場合に許可するオリジン。
var DefaultAllowedOrigins = []string{
	"https://stitch-tracker.pages.dev",
	"http://localhost:5173",
	"http://localhost:4173",
}

// Config はゲートウェイの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT,default=8080"`
	// Environment はヘルスチェックで返す環境名。
	Environment string `env:"ENVIRONMENT,default=development"`
	// Production は本番環境かどうか。trueの場合、開発用の認証バイパスは常に無効になる。
	Production bool `env:"PRODUCTION,default=false"`
	// DevTrustUserHeader は起動データが無いリクエストでX-User-Idヘッダーを信用するかどうか。
	// ローカル開発専用。本番環境では設定できない。
	DevTrustUserHeader bool `env:"DEV_TRUST_USER_HEADER,default=false"`
	// BotToken は起動データの署名検証に使う共有秘密。
	BotToken string `env:"BOT_TOKEN"`
	// DatabasePath はSQLiteのファイルパス。
	DatabasePath string `env:"DATABASE_PATH,default=data/stitch-tracker.db"`
	// RedisURL はキー/値ストアの接続先。空の場合はプロセス内メモリを使う。
	RedisURL string `env:"REDIS_URL"`
	// AllowedOriginsRaw はカンマ区切りの許可オリジン。
	AllowedOriginsRaw string `env:"ALLOWED_ORIGINS"`
	// RateLimitWrite はウィンドウあたりの書き込み上限。
	RateLimitWrite int `env:"RATE_LIMIT_WRITE,default=20"`
	// RateLimitRead はウィンドウあたりの読み取り上限。
	RateLimitRead int `env:"RATE_LIMIT_READ,default=60"`
	// RateLimitWindow はレート制限の固定ウィンドウ長。
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=60s"`
	// ProfileCacheTTL はプロフィールキャッシュの有効期間。
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL,default=1h"`
	// InitDataMaxAge は起動データの有効期間。
	InitDataMaxAge time.Duration `env:"INIT_DATA_MAX_AGE,default=300s"`
	// NotificationURL は通知サービスのベースURL。空の場合は通知APIを提供しない。
	NotificationURL string `env:"NOTIFICATION_URL"`
	// NotificationSecret は通知サービスとの共有シークレット。Bearerとしてそのまま送る。
	NotificationSecret string `env:"NOTIFICATION_SECRET"`
	// NotificationSignedToken がtrueの場合、共有シークレットの代わりにそれで署名したHS256トークンを送る。
	NotificationSignedToken bool `env:"NOTIFICATION_SIGNED_TOKEN,default=false"`
	// NotificationRPS は通知サービスへの毎秒の送信上限。
	NotificationRPS float64 `env:"NOTIFICATION_RPS,default=5"`
	// LogLevel はzerologのログレベル名。
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// MetricsEnabled は/metricsを公開するかどうか。
	MetricsEnabled bool `env:"METRICS_ENABLED,default=true"`
}

// Default は環境変数が1つも無い場合の設定を返す。
func Default() *Config {
	return &Config{
		Port:            "8080",
		Environment:     "development",
		DatabasePath:    "data/stitch-tracker.db",
		RateLimitWrite:  20,
		RateLimitRead:   60,
		RateLimitWindow: time.Minute,
		ProfileCacheTTL: time.Hour,
		InitDataMaxAge:  300 * time.Second,
		NotificationRPS: 5,
		LogLevel:        "info",
		MetricsEnabled:  true,
	}
}

// Load は .env ファイルと環境変数から設定を読み込み、検証する。
// envFiles を省略した場合はカレントディレクトリの .env を存在すれば読む。
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		if !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
		}
		cfg = Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定の組み合わせを検証する。
func (c *Config) Validate() error {
	if c.Production {
		if c.DevTrustUserHeader {
			return errors.New("PRODUCTION=true ではDEV_TRUST_USER_HEADERを有効にできません")
		}
		if c.BotToken == "" {
			return errors.New("PRODUCTION=true ではBOT_TOKENが必要です")
		}
		if c.RedisURL == "" {
			return errors.New("PRODUCTION=true ではREDIS_URLが必要です")
		}
	}
	if err := c.RateLimitPolicy().Validate(); err != nil {
		return fmt.Errorf("レート制限の設定が不正: %w", err)
	}
	if c.InitDataMaxAge <= 0 {
		return fmt.Errorf("INIT_DATA_MAX_AGEは正の値である必要があります: %v", c.InitDataMaxAge)
	}
	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTLは正の値である必要があります: %v", c.ProfileCacheTTL)
	}
	if c.NotificationURL != "" && c.NotificationRPS <= 0 {
		return fmt.Errorf("NOTIFICATION_RPSは正の値である必要があります: %v", c.NotificationRPS)
	}
	if c.NotificationSignedToken && c.NotificationSecret == "" {
		return errors.New("NOTIFICATION_SIGNED_TOKEN=true ではNOTIFICATION_SECRETが必要です")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVELが不正: %w", err)
	}
	return nil
}

// DevBypassEnabled は開発用の認証バイパスを有効にするかどうかを返す。
// 本番環境では設定値に関わらず常にfalse。
func (c *Config) DevBypassEnabled() bool {
	return c.DevTrustUserHeader && !c.Production
}

// AllowedOrigins はCORSで許可するオリジンの一覧を返す。
func (c *Config) AllowedOrigins() []string {
	if strings.TrimSpace(c.AllowedOriginsRaw) == "" {
		return append([]string(nil), DefaultAllowedOrigins...)
	}
	var origins []string
	for _, o := range strings.Split(c.AllowedOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// RateLimitPolicy はレート制限のポリシーを返す。
func (c *Config) RateLimitPolicy() ratelimit.Policy {
	return ratelimit.Policy{
		WriteLimit: c.RateLimitWrite,
		ReadLimit:  c.RateLimitRead,
		Window:     c.RateLimitWindow,
	}
}

// Level はログレベルを返す。解釈できない場合はinfo。
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
