// Package store はシステム・オブ・レコードとなるリレーショナルストア（SQLite）を開き、
// スキーマを最新化する。
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/stitch-tracker/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryDSN はテスト用のインメモリデータベース。
const MemoryDSN = ":memory:"

// Open はSQLiteデータベースに接続し、マイグレーションを適用する。
// ファイルパスにはWALとビジータイムアウトを設定する。
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == MemoryDSN {
		// インメモリDBは接続ごとに別のデータベースになるため1接続に固定する
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースの疎通確認に失敗: %w", err)
	}

	if _, err := migration.Run(db.DB, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// dsn はmodernc.org/sqlite向けの接続文字列を組み立てる。
func dsn(path string) string {
	if path == MemoryDSN || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
