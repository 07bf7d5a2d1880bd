package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(captured *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			*captured = GetRequestID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("ヘッダーが無い場合は生成されること", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		got := w.Header().Get(HeaderRequestID)
		if _, err := xid.FromString(got); err != nil {
			t.Errorf("X-Request-Id = %q はxid形式ではない: %v", got, err)
		}
		if captured != got {
			t.Errorf("コンテキストのID = %q, ヘッダー = %q", captured, got)
		}
	})

	t.Run("受け取ったIDを引き継ぐこと", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "upstream-id")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(HeaderRequestID); got != "upstream-id" {
			t.Errorf("X-Request-Id = %q, want %q", got, "upstream-id")
		}
	})

	t.Run("長すぎるIDは置き換えること", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", 65))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(HeaderRequestID); len(got) > maxRequestIDLength {
			t.Errorf("X-Request-Id の長さ = %d", len(got))
		}
	})
}
