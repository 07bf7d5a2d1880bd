package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/internal/metrics"
	"github.com/nao1215/stitch-tracker/pkg/kv"
)

// DefaultCacheTTL はキャッシュエントリの既定の有効期間。
const DefaultCacheTTL = time.Hour

// Service はプロフィールの読み込みキャッシュ付きアクセスを提供する。
type Service struct {
	// repo は正となるストア。
	repo *Repository
	// cache はプロフィール専用の名前空間を持つキー/値ストア。
	cache kv.Store
	// ttl はキャッシュエントリの有効期間。
	ttl time.Duration
	// metrics はキャッシュのヒット率を記録する。nilでもよい。
	metrics *metrics.Metrics
	// logger はキャッシュ障害の記録に使う。
	logger zerolog.Logger
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
	// newID は行IDを採番する。
	newID func() string
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithMetrics はキャッシュメトリクスの記録先を設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得方法を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService は新しいServiceを生成する。cache にはプロフィール専用の名前空間を渡すこと。
func NewService(repo *Repository, cache kv.Store, ttl time.Duration, logger zerolog.Logger, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	s := &Service{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "profile").Logger(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get は呼び出し元のプロフィールを返す。存在しない場合は nil, nil を返す。
//
// キャッシュにあればそれを返す。無ければストアから読み、見つかった場合だけキャッシュに書く。
// 存在しないことはキャッシュしない。
func (s *Service) Get(ctx context.Context, identity string) (*Profile, error) {
	if p, ok := s.lookupCache(ctx, identity); ok {
		s.metrics.CacheHit()
		return p, nil
	}
	s.metrics.CacheMiss()

	p, err := s.repo.FindByUserID(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.populate(ctx, identity, p)
	return p, nil
}

// Upsert は呼び出し元のプロフィールを作成または部分更新し、確定した行を返す。
//
// 書き込み後にキャッシュを削除し、その後でストアから読み直す。
// キャッシュの削除に失敗した場合は古い値が残る恐れがあるためエラーを返す。
func (s *Service) Upsert(ctx context.Context, identity string, f Fields) (*Profile, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if err := s.write(ctx, identity, f); err != nil {
		return nil, err
	}

	if err := s.cache.Delete(ctx, identity); err != nil {
		return nil, fmt.Errorf("プロフィールキャッシュの削除に失敗: %w", err)
	}
	s.metrics.CacheInvalidated()

	p, err := s.repo.FindByUserID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("更新後のプロフィールの読み直しに失敗: %w", err)
	}
	return p, nil
}

// write は既存行の有無で更新と作成を切り替える。
// 同時に初回作成が走り一意制約に当たった場合は更新にやり直す。
func (s *Service) write(ctx context.Context, identity string, f Fields) error {
	now := s.timestamp()

	_, err := s.repo.FindByUserID(ctx, identity)
	switch {
	case err == nil:
		return s.repo.Update(ctx, identity, f, now)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	err = s.repo.Insert(ctx, newProfile(s.newID(), identity, f, now))
	if errors.Is(err, ErrDuplicate) {
		s.logger.Debug().Str("identity", identity).Msg("同時に作成されたため更新に切り替えます")
		return s.repo.Update(ctx, identity, f, now)
	}
	return err
}

// lookupCache はキャッシュを読む。読めない値や障害はミスとして扱う。
func (s *Service) lookupCache(ctx context.Context, identity string) (*Profile, bool) {
	raw, found, err := s.cache.Get(ctx, identity)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("プロフィールキャッシュの読み取りに失敗")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("プロフィールキャッシュの値が不正です")
		return nil, false
	}
	return &p, true
}

// populate はストアから読んだ行をキャッシュに書く。失敗してもリクエストは成功させる。
func (s *Service) populate(ctx context.Context, identity string, p *Profile) {
	raw, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("プロフィールのシリアライズに失敗")
		return
	}
	if err := s.cache.Set(ctx, identity, string(raw), s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("プロフィールキャッシュの書き込みに失敗")
	}
}

// timestamp はupdated_atに書く現在時刻。
func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
