// Package kv は有効期限付きの共有キー/値ストアを抽象化する。
//
// レート制限カウンタとプロフィールキャッシュが同じ物理ストアを使う。
// 論理的な名前空間は Namespace で分離し、キー体系の衝突を防ぐ。
// 本番ではRedis（RedisStore）、開発とテストではインメモリ実装（MemoryStore）を使用する。
package kv
