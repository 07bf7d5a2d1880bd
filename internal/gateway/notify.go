package gateway

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/nao1215/stitch-tracker/internal/apperror"
	"github.com/nao1215/stitch-tracker/pkg/httpclient"
	"github.com/nao1215/stitch-tracker/pkg/middleware"
)

// handleNotify は通知要求を通知サービスの path に転送するハンドラを返す。
// 宛先のchatIdが呼び出し元IDと一致しない場合は転送せず403を返す。
func (s *Server) handleNotify(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.notifier == nil {
			s.respondError(c, apperror.Unavailable("Notification service is not configured"))
			return
		}

		body, err := c.GetRawData()
		if err != nil || !gjson.ValidBytes(body) {
			s.respondError(c, apperror.ValidationFailed("Invalid JSON body"))
			return
		}

		identity := middleware.GetIdentity(c)
		if chatID(body) != identity {
			s.respondError(c, apperror.Forbidden("chatId must match authenticated user"))
			return
		}

		ctx := httpclient.WithUserID(c.Request.Context(), identity)
		resp, err := s.notifier.Forward(ctx, path, body)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Data(resp.StatusCode, resp.ContentType, resp.Body)
	}
}

// chatID はボディのchatIdを文字列として返す。文字列は値をそのまま使う。
// 数値は整数の表記に揃える（123456789.0 や 1.23456789e8 は "123456789"）。
// それ以外の型や欠落は空文字列。
func chatID(body []byte) string {
	v := gjson.GetBytes(body, "chatId")
	switch v.Type {
	case gjson.Number:
		return normalizeNumber(v)
	case gjson.String:
		return v.Str
	default:
		return ""
	}
}

// maxExactInteger はfloat64で誤差なく表せる整数の上限。
const maxExactInteger = 1 << 53

// normalizeNumber は数値を10進の文字列にする。
// 整数リテラルは桁を失わないよう元の表記を使い、整数値の小数・指数表記は整数に直す。
func normalizeNumber(v gjson.Result) string {
	if isIntegerLiteral(v.Raw) {
		return v.Raw
	}
	if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < maxExactInteger {
		return strconv.FormatInt(int64(v.Num), 10)
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// isIntegerLiteral は符号つきの10進整数リテラルかどうかを返す。
func isIntegerLiteral(raw string) bool {
	digits := strings.TrimPrefix(raw, "-")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
