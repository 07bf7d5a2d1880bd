package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/stitch-tracker/pkg/kv"
)

// Class は操作種別。書き込みと読み取りで独立した上限を持つ。
type Class string

const (
	// ClassRead は状態を変更しない操作。
	ClassRead Class = "read"
	// ClassWrite は状態を変更する操作。
	ClassWrite Class = "write"
)

// ClassifyMethod はHTTPメソッドから操作種別を決める。
func ClassifyMethod(method string) Class {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return ClassWrite
	default:
		return ClassRead
	}
}

// bucket はカウンタキーに使う短縮名。
func (c Class) bucket() string {
	if c == ClassWrite {
		return "w"
	}
	return "r"
}

// plural はメッセージ用の複数形。
func (c Class) plural() string {
	if c == ClassWrite {
		return "writes"
	}
	return "reads"
}

// Policy は種別ごとの上限とウィンドウ長。
type Policy struct {
	// WriteLimit はウィンドウあたりの書き込み上限。
	WriteLimit int
	// ReadLimit はウィンドウあたりの読み取り上限。
	ReadLimit int
	// Window は固定ウィンドウの長さ。
	Window time.Duration
}

// DefaultPolicy は書き込み20回・読み取り60回／60秒のポリシーを返す。
func DefaultPolicy() Policy {
	return Policy{WriteLimit: 20, ReadLimit: 60, Window: time.Minute}
}

// Limit は種別に対応する上限を返す。
func (p Policy) Limit(c Class) int {
	if c == ClassWrite {
		return p.WriteLimit
	}
	return p.ReadLimit
}

// Validate はポリシーが有効かを検証する。
func (p Policy) Validate() error {
	if p.WriteLimit <= 0 || p.ReadLimit <= 0 {
		return fmt.Errorf("上限は正の値である必要があります: write=%d, read=%d", p.WriteLimit, p.ReadLimit)
	}
	if p.Window < time.Second {
		return fmt.Errorf("ウィンドウは1秒以上である必要があります: %v", p.Window)
	}
	return nil
}

// Decision は1回の判定結果。
type Decision struct {
	// Allowed はリクエストを通すかどうか。
	Allowed bool
	// Class は判定した操作種別。
	Class Class
	// Limit は適用した上限。
	Limit int
	// Current は判定時点のウィンドウ内カウント（今回分を含まない）。
	Current int
	// Window はウィンドウ番号。
	Window int64
}

// ErrRateLimited は上限超過を表すセンチネル。*LimitError は errors.Is でこれに一致する。
var ErrRateLimited = errors.New("rate limited")

// LimitError は上限超過の詳細。クライアントが待機を判断できるよう上限と種別を持つ。
type LimitError struct {
	// Class は超過した操作種別。
	Class Class
	// Limit は適用された上限。
	Limit int
	// Window はウィンドウ長。
	Window time.Duration
}

// Error はクライアント向けのメッセージを返す。
func (e *LimitError) Error() string {
	per := "per minute"
	if e.Window != time.Minute {
		per = "per " + e.Window.String()
	}
	return fmt.Sprintf("Rate limit exceeded (%d/%s %s)", e.Limit, e.Class.plural(), per)
}

// Is は ErrRateLimited との比較を可能にする。
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// defaultPersistTimeout はカウンタ書き込み1回あたりの待ち時間の上限。
const defaultPersistTimeout = 5 * time.Second

// Limiter は固定ウィンドウのレートリミッタ。
type Limiter struct {
	// store はカウンタを保持する共有ストア。
	store kv.Store
	// policy は種別ごとの上限。
	policy Policy
	// logger は書き込み失敗の記録に使う。
	logger zerolog.Logger
	// pending は未完了のカウンタ書き込み。
	pending sync.WaitGroup
	// persistTimeout はカウンタ書き込みのタイムアウト。
	persistTimeout time.Duration
}

// New は新しいLimiterを生成する。store にはレート制限専用の名前空間を渡すこと。
func New(store kv.Store, policy Policy, logger zerolog.Logger) *Limiter {
	return &Limiter{
		store:          store,
		policy:         policy,
		logger:         logger.With().Str("component", "ratelimit").Logger(),
		persistTimeout: defaultPersistTimeout,
	}
}

// Policy は適用中のポリシーを返す。
func (l *Limiter) Policy() Policy {
	return l.policy
}

// CheckAndIncrement は現在のカウントを読み、上限未満ならカウントを1増やして許可する。
//
// カウンタの書き込みは応答を待たせないよう非同期に行い、失敗してもログに残すだけで
// リクエストは通す（精度より可用性を優先する）。カウンタの読み取りに失敗した場合も同様に許可する。
// 上限以上の場合は *LimitError を返す。
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity string, class Class, now time.Time) (Decision, error) {
	limit := l.policy.Limit(class)
	window := WindowID(now, l.policy.Window)
	key := counterKey(identity, class, window)

	d := Decision{Class: class, Limit: limit, Window: window}

	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("カウンタの読み取りに失敗したため制限せずに通します")
		d.Allowed = true
		return d, nil
	}
	if found {
		d.Current = parseCount(raw)
	}

	if d.Current >= limit {
		return d, &LimitError{Class: class, Limit: limit, Window: l.policy.Window}
	}

	d.Allowed = true
	l.persist(ctx, key, d.Current+1)
	return d, nil
}

// Wait は未完了のカウンタ書き込みがすべて終わるまで待つ。シャットダウン時に呼ぶ。
func (l *Limiter) Wait() {
	l.pending.Wait()
}

// persist はカウンタをウィンドウ長のTTLで非同期に書き込む。
func (l *Limiter) persist(ctx context.Context, key string, count int) {
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.persistTimeout)
		defer cancel()

		if err := l.store.Set(ctx, key, strconv.Itoa(count), l.policy.Window); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Int("count", count).Msg("カウンタの書き込みに失敗")
		}
	}()
}

// WindowID は時刻が属する固定ウィンドウの番号を返す。
func WindowID(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / window.Milliseconds()
}

// counterKey はカウンタのキーを組み立てる。
func counterKey(identity string, class Class, window int64) string {
	return identity + ":" + class.bucket() + ":" + strconv.FormatInt(window, 10)
}

// parseCount は保存値を整数として読む。解析できない値は0とみなす。
func parseCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
