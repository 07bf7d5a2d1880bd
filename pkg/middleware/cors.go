package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORSで返す固定ヘッダー。
const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, " + HeaderInitData + ", " + HeaderUserID
	corsMaxAge       = "86400"
)

// CORS はクロスオリジン応答ポリシーを適用するGinミドルウェアを返す。
//
// すべての応答にCORSヘッダーを付ける。Access-Control-Allow-Origin は
// リクエストのOriginが許可リストにある場合だけそれを返し、それ以外は空にする。
// OPTIONSリクエストは認証より前に204で終了する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		allowOrigin := ""
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := originsSet[origin]; ok {
				allowOrigin = origin
			}
		}

		// c.Header は空文字列を渡すとヘッダーを削除するため直接設定する
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
