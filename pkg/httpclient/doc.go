// Package httpclient は外部サービスへのHTTP通信を行うクライアントを提供する。
//
// ゲートウェイから通知サービスへの転送に使用する。送信前にトークンバケットで
// 送信レートを抑え、呼び出し元IDを主体とする短命のHS256トークンを付与する。
package httpclient
