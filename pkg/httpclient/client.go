package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	// headerKeyUserID は呼び出し元IDを伝播するためのHTTPヘッダーキー。
	headerKeyUserID = "X-User-ID"
	// tokenIssuer はサービス間トークンの発行者。
	tokenIssuer = "stitch-tracker-gateway"
	// tokenTTL はサービス間トークンの有効期間。
	tokenTTL = time.Minute
	// maxResponseBytes は読み込む応答ボディの上限。
	maxResponseBytes = 1 << 20
)

// Client は外部サービス通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// sharedSecret はそのままBearerとして送る共有シークレット。
	sharedSecret string
	// signingKey はサービス間トークンの署名鍵。設定時は共有シークレットより優先する。
	signingKey []byte
	// limiter は送信レートの制御。nilの場合は制限しない。
	limiter *rate.Limiter
	// now は現在時刻を返す。
	now func() time.Time
}

// Option はClientの任意設定。
type Option func(*Client)

// WithSharedSecret は共有シークレットを "Authorization: Bearer <secret>" として送るよう設定する。
// 既存の通知サービスが共有シークレットとの一致で認可する方式。
func WithSharedSecret(secret string) Option {
	return func(c *Client) {
		c.sharedSecret = secret
	}
}

// WithServiceToken は共有シークレットの代わりに、secretで署名した短命のHS256トークンを送るよう設定する。
// 通知サービス側がトークンを検証できる場合に使う。
func WithServiceToken(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.signingKey = []byte(secret)
		}
	}
}

// WithRateLimit は毎秒の送信数とバースト数を設定する。
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://notification:8086"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response は接続先の応答をそのまま中継するための値。
type Response struct {
	// StatusCode は接続先が返したステータスコード。
	StatusCode int
	// ContentType は接続先が返したContent-Type。
	ContentType string
	// Body は応答ボディ。
	Body []byte
}

// Forward は指定パスにJSONボディをPOSTし、接続先のステータスとボディを返す。
// 2xx以外のステータスもエラーにせず、そのまま返す。
func (c *Client) Forward(ctx context.Context, path string, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("送信レート制御の待機に失敗: %w", err)
		}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// コンテキストからユーザーIDを伝播する
	userID, _ := ctx.Value(contextKeyUserID).(string)
	if userID != "" {
		req.Header.Set(headerKeyUserID, userID)
	}
	bearer, err := c.bearer(userID)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &Response{StatusCode: resp.StatusCode, ContentType: contentType, Body: respBody}, nil
}

// bearer はAuthorizationヘッダーに載せる値を返す。認証情報が無い場合は空文字列。
func (c *Client) bearer(userID string) (string, error) {
	if len(c.signingKey) > 0 {
		return GenerateServiceToken(c.signingKey, userID, c.now())
	}
	return c.sharedSecret, nil
}

// ServiceClaims はサービス間トークンのクレーム。
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// GenerateServiceToken は呼び出し元IDを主体とする短命のHS256トークンを生成する。
func GenerateServiceToken(secret []byte, subject string, now time.Time) (string, error) {
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("サービス間トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyUserID はコンテキストにユーザーIDを格納するためのキー。
const contextKeyUserID contextKey = "user_id"

// WithUserID はコンテキストにユーザーIDを設定する。
// 外部サービスとの通信時にユーザーIDを伝播するために使用する。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}
