package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/stitch-tracker/pkg/ratelimit"
)

// RateLimit は呼び出し元と操作種別ごとのレート制限を行うGinミドルウェアを返す。
// Authの後に適用する。呼び出し元IDが無いリクエスト（認証対象外のパス）は制限しない。
// recorderがnilの場合は拒否を記録しない。
func RateLimit(limiter *ratelimit.Limiter, recorder RateLimitRecorder, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == "" {
			c.Next()
			return
		}

		class := ratelimit.ClassifyMethod(c.Request.Method)
		if _, err := limiter.CheckAndIncrement(c.Request.Context(), identity, class, now()); err != nil {
			if recorder != nil {
				recorder.RateLimited(string(class))
			}
			body := gin.H{"error": err.Error()}
			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				body["limit"] = limitErr.Limit
				body["class"] = string(limitErr.Class)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
			return
		}
		c.Next()
	}
}
