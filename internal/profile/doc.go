// Package profile は呼び出し元ごとのプロフィールを提供する。
//
// リレーショナルストアを正とし、キー/値ストアを読み込み時に埋めるキャッシュとして使う。
// キャッシュへの書き込みは Get の取得経路だけが行い、Upsert はストアへの書き込み後に
// キャッシュを削除してから正の行を読み直して返す。リクエスト由来のデータが
// そのままキャッシュに入る経路は存在しない。
package profile
