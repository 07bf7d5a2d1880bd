package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

// HeaderRequestID はリクエストIDを運ぶヘッダー。
const HeaderRequestID = "X-Request-Id"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
const contextKeyRequestID = "request_id"

// maxRequestIDLength は受け入れるリクエストIDの最大長。
const maxRequestIDLength = 64

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// 受け取ったX-Request-Idが妥当ならそれを使い、無ければ生成する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = xid.New().String()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
