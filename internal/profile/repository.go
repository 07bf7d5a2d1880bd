package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound は呼び出し元のプロフィールが存在しないことを表す。
	ErrNotFound = errors.New("プロフィールが存在しません")
	// ErrDuplicate は同じ呼び出し元の行が既に存在することを表す。
	ErrDuplicate = errors.New("プロフィールが既に存在します")
)

// selectColumns は読み込むカラムの一覧。
const selectColumns = `id, user_id, username, first_name, last_name, avatar_url, email, timezone,
	subscription_status, morning_summary_time, evening_summary_time, summaries_enabled,
	created_at, updated_at`

// Repository はusersテーブルへのアクセスを提供する。
// すべてのクエリは呼び出し元IDで絞り込み、他の呼び出し元の行を返すことはない。
type Repository struct {
	// db はデータベース接続。
	db *sqlx.DB
}

// NewRepository は新しいRepositoryを生成する。
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindByUserID は呼び出し元IDでプロフィールを取得する。存在しない場合は ErrNotFound を返す。
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, "SELECT "+selectColumns+" FROM users WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗: %w", err)
	}
	return &p, nil
}

// Insert は新しい行を挿入する。同じ呼び出し元の行が既にある場合は ErrDuplicate を返す。
func (r *Repository) Insert(ctx context.Context, p *Profile) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users (
		id, user_id, username, first_name, last_name, avatar_url, email, timezone,
		subscription_status, morning_summary_time, evening_summary_time, summaries_enabled,
		created_at, updated_at
	) VALUES (
		:id, :user_id, :username, :first_name, :last_name, :avatar_url, :email, :timezone,
		:subscription_status, :morning_summary_time, :evening_summary_time, :summaries_enabled,
		:created_at, :updated_at
	)`, p)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗: %w", err)
	}
	return nil
}

// Update は指定された項目とupdated_atだけを更新する。
// 項目が1つも指定されていない場合は何もしない。対象行が無い場合は ErrNotFound を返す。
func (r *Repository) Update(ctx context.Context, userID string, f Fields, updatedAt string) error {
	cols := f.columns()
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c.name+" = ?")
		args = append(args, c.value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt, userID)

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE user_id = ?"
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation は一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}
