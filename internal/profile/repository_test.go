package profile

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/stitch-tracker/internal/store"
)

// newTestRepository はインメモリDBを使うRepositoryを生成する。
func newTestRepository(t *testing.T) (*Repository, *sqlx.DB) {
	t.Helper()

	db, err := store.Open(context.Background(), store.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), db
}

func TestRepository(t *testing.T) {
	t.Parallel()

	const now = "2026-01-01T00:00:00Z"

	t.Run("存在しない呼び出し元はErrNotFound", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		_, err := repo.FindByUserID(context.Background(), "42")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("挿入した行を取得できること", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		ctx := context.Background()
		require.NoError(t, repo.Insert(ctx, newProfile("id-1", "42", Fields{
			FirstName:        ptr("Alice"),
			SummariesEnabled: ptr(true),
		}, now)))

		got, err := repo.FindByUserID(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "id-1", got.ID)
		assert.Equal(t, "42", got.UserID)
		assert.Equal(t, "Alice", *got.FirstName)
		assert.Nil(t, got.LastName)
		assert.Equal(t, DefaultTimezone, got.Timezone)
		assert.True(t, got.SummariesEnabled)
		assert.Equal(t, now, got.CreatedAt)
	})

	t.Run("同じ呼び出し元の2回目の挿入はErrDuplicate", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		ctx := context.Background()
		require.NoError(t, repo.Insert(ctx, newProfile("id-1", "42", Fields{}, now)))

		err := repo.Insert(ctx, newProfile("id-2", "42", Fields{}, now))
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("部分更新は指定項目とupdated_atだけを変えること", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		ctx := context.Background()
		require.NoError(t, repo.Insert(ctx, newProfile("id-1", "42", Fields{
			Username: ptr("alice"),
			Timezone: ptr("Asia/Tokyo"),
		}, now)))

		later := "2026-01-02T00:00:00Z"
		require.NoError(t, repo.Update(ctx, "42", Fields{Timezone: ptr("UTC"), SummariesEnabled: ptr(true)}, later))

		got, err := repo.FindByUserID(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "alice", *got.Username)
		assert.Equal(t, "UTC", got.Timezone)
		assert.True(t, got.SummariesEnabled)
		assert.Equal(t, now, got.CreatedAt)
		assert.Equal(t, later, got.UpdatedAt)
	})

	t.Run("更新は他の呼び出し元の行に影響しないこと", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		ctx := context.Background()
		require.NoError(t, repo.Insert(ctx, newProfile("id-1", "42", Fields{Username: ptr("alice")}, now)))
		require.NoError(t, repo.Insert(ctx, newProfile("id-2", "43", Fields{Username: ptr("bob")}, now)))

		require.NoError(t, repo.Update(ctx, "42", Fields{Username: ptr("carol")}, now))

		other, err := repo.FindByUserID(ctx, "43")
		require.NoError(t, err)
		assert.Equal(t, "bob", *other.Username)
	})

	t.Run("項目指定なしの更新は何もしないこと", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		assert.NoError(t, repo.Update(context.Background(), "missing", Fields{}, now))
	})

	t.Run("存在しない行の更新はErrNotFound", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepository(t)
		err := repo.Update(context.Background(), "missing", Fields{Username: ptr("x")}, now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// newMockRepository はsqlmockを使うRepositoryを生成する。
func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewRepository(sqlx.NewDb(mockDB, "sqlite")), mock
}

func TestRepositoryStoreFailure(t *testing.T) {
	t.Parallel()

	errDisk := errors.New("disk I/O error")

	t.Run("取得の失敗はラップして返すこと", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE user_id = ?")).
			WithArgs("42").
			WillReturnError(errDisk)

		_, err := repo.FindByUserID(context.Background(), "42")
		assert.ErrorIs(t, err, errDisk)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("更新のSQLは呼び出し元IDで絞り込むこと", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET email = ?, updated_at = ? WHERE user_id = ?")).
			WithArgs("a@example.com", "2026-01-01T00:00:00Z", "42").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), "42", Fields{Email: ptr("a@example.com")}, "2026-01-01T00:00:00Z")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("更新の失敗はラップして返すこと", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).WillReturnError(errDisk)

		err := repo.Update(context.Background(), "42", Fields{Email: ptr("a@example.com")}, "2026-01-01T00:00:00Z")
		assert.ErrorIs(t, err, errDisk)
	})

	t.Run("挿入の失敗は一意制約違反と区別すること", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMockRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).WillReturnError(errDisk)

		err := repo.Insert(context.Background(), newProfile("id-1", "42", Fields{}, "2026-01-01T00:00:00Z"))
		assert.ErrorIs(t, err, errDisk)
		assert.NotErrorIs(t, err, ErrDuplicate)
	})
}
