package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver はリクエストの件数と処理時間の記録先。
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// AuthFailureRecorder は認証失敗の記録先。
type AuthFailureRecorder interface {
	AuthFailure(reason string)
}

// RateLimitRecorder はレート制限による拒否の記録先。
type RateLimitRecorder interface {
	RateLimited(class string)
}

// Metrics はリクエスト件数と処理時間を記録するGinミドルウェアを返す。
// ルートはパターン（例: /api/profile）で集計する。observerがnilの場合は何もしない。
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		observer.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
