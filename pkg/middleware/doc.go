// Package middleware はゲートウェイで使用するGinミドルウェアを提供する。
//
// リクエストID、アクセスログ、メトリクス、CORS、パニックリカバリ、
// 起動データによる認証、操作種別ごとのレート制限を含む。
// 推奨する適用順は RequestID, AccessLog, Metrics, CORS, Recovery, Auth, RateLimit。
// CORSを先に適用することで、以降のどの段階で応答が確定してもCORSヘッダーが付く。
package middleware
