package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// observation は記録された1件のリクエスト。
type observation struct {
	method string
	route  string
	status int
}

// requestRecorder はリクエストの記録を保持するテスト用の記録先。
type requestRecorder struct {
	mu   sync.Mutex
	seen []observation
}

func (r *requestRecorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method: method, route: route, status: status})
}

// TestMetrics はMetricsミドルウェアを検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("ルートのパターンで記録されること", func(t *testing.T) {
		t.Parallel()

		rec := &requestRecorder{}
		router := gin.New()
		router.Use(Metrics(rec))
		router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

		for _, path := range []string{"/items/1", "/items/2"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}

		if len(rec.seen) != 2 {
			t.Fatalf("記録数 = %d, want 2", len(rec.seen))
		}
		want := observation{method: http.MethodGet, route: "/items/:id", status: http.StatusAccepted}
		for i, got := range rec.seen {
			if got != want {
				t.Errorf("%d件目 = %+v, want %+v", i+1, got, want)
			}
		}
	})

	t.Run("記録先が無い場合も動作すること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Metrics(nil))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
