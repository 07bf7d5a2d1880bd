package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、500エラーを返す。
// 応答にはパニック値がerrorの場合だけそのメッセージを含め、スタックトレースは含めない。
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			message := "Internal server error"
			if err, ok := r.(error); ok {
				message = err.Error()
			}

			logger.Error().
				Str("request_id", GetRequestID(c)).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("パニックから回復しました")

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": message})
		}()
		c.Next()
	}
}
