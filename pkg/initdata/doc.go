// Package initdata はチャットプラットフォームのWebアプリが発行する署名付き起動データ（init data）を検証する。
//
// 起動データはURLエンコードされたキー/値の集合で、埋め込みのユーザー記述子（JSON）、
// 発行時刻 auth_date、署名 hash を含む。署名はボットトークンから導出した鍵による
// 2段階のHMAC-SHA256で計算される。この構成は発行元との相互運用のため固定であり変更できない。
//
// 検証はセッションストアを使わない純粋関数で、(起動データ, 共有シークレット, 現在時刻) のみに依存する。
package initdata
