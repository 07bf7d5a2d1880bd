// Package migration はSQLiteデータベースのマイグレーションを管理する。
// embed.FSからSQLファイルを読み込み、golang-migrateのバージョン管理テーブルで適用状態を追跡する。
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Result はマイグレーション適用後の状態。
type Result struct {
	// Version は適用済みの最新バージョン。
	Version uint
	// Applied は今回の実行で新たに適用したものがあるか。
	Applied bool
}

// Run はembedされたマイグレーションファイルを順序通りに適用する。
// 未適用のマイグレーションのみ実行し、適用済みのものはスキップする。
// ファイル名形式: 000001_description.up.sql / 000001_description.down.sql
//
// db は呼び出し側が所有し続ける。ここでは閉じない。
func Run(db *sql.DB, fsys fs.FS, dir string) (Result, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return Result{}, fmt.Errorf("マイグレーションファイルの読み込みに失敗: %w", err)
	}
	defer src.Close() //nolint:errcheck

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return Result{}, fmt.Errorf("マイグレーションドライバの初期化に失敗: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return Result{}, fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}

	applied := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Result{}, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
		}
		applied = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("マイグレーション %06d が途中で失敗した状態です", version)
	}

	return Result{Version: version, Applied: applied}, nil
}
