package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/pkg/initdata"
)

const (
	// HeaderInitData は署名付き起動データを運ぶヘッダー。
	HeaderInitData = "X-Telegram-Init-Data"
	// HeaderUserID は開発用の認証バイパスで信用する呼び出し元IDヘッダー。
	HeaderUserID = "X-User-Id"
)

// contextKeyIdentity はGinコンテキストに呼び出し元IDを格納するキー。
const contextKeyIdentity = "identity"

// missingAuthMessage は認証情報が1つも無い場合に返すメッセージ。
const missingAuthMessage = "Missing authentication (X-Telegram-Init-Data header required)"

// AuthConfig は認証ミドルウェアの設定。
type AuthConfig struct {
	// Verifier は起動データの検証器。
	Verifier *initdata.Verifier
	// DevBypass は起動データが無い場合にX-User-Idを信用するかどうか。
	//
	// 警告: ローカル開発専用。本番環境では必ずfalseにすること。
	// config.Config.DevBypassEnabled の値をそのまま渡す。
	DevBypass bool
	// SkipPaths は認証しないパス。
	SkipPaths []string
	// Logger は認証失敗の記録に使う。
	Logger zerolog.Logger
	// Failures は認証失敗の件数を記録する。nilでもよい。
	Failures AuthFailureRecorder
	// Now は現在時刻を返す。nilの場合は time.Now。
	Now func() time.Time
}

// Auth は起動データを検証して呼び出し元IDをコンテキストに設定するGinミドルウェアを返す。
// 検証に失敗した場合は理由つきの401を返し、以降のハンドラは実行しない。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.DevBypass {
		cfg.Logger.Warn().Msg("開発用の認証バイパスが有効です。X-User-Idヘッダーを検証せずに信用します")
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		blob := c.GetHeader(HeaderInitData)
		if blob == "" && cfg.DevBypass {
			if userID := c.GetHeader(HeaderUserID); userID != "" {
				c.Set(contextKeyIdentity, userID)
				c.Next()
				return
			}
		}

		id, err := cfg.Verifier.Verify(blob, now())
		if err != nil {
			reason, message := unauthorized(err)
			if cfg.Failures != nil {
				cfg.Failures.AuthFailure(reason)
			}
			cfg.Logger.Debug().
				Err(err).
				Str("request_id", GetRequestID(c)).
				Str("path", c.Request.URL.Path).
				Msg("認証に失敗")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  message,
				"reason": reason,
			})
			return
		}

		c.Set(contextKeyIdentity, id.UserID)
		c.Next()
	}
}

// unauthorized は検証エラーを401レスポンスの理由とメッセージに変換する。
func unauthorized(err error) (string, string) {
	if errors.Is(err, initdata.ErrMissingCredential) {
		return initdata.ErrMissingCredential.Reason(), missingAuthMessage
	}
	var verr *initdata.Error
	if errors.As(err, &verr) {
		return verr.Reason(), verr.Message()
	}
	return "Unauthorized", err.Error()
}

// GetIdentity はGinコンテキストから呼び出し元IDを取得する。
// Authミドルウェアが事前に適用されている必要がある。未認証の場合は空文字列。
func GetIdentity(c *gin.Context) string {
	return c.GetString(contextKeyIdentity)
}
