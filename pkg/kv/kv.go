package kv

import (
	"context"
	"time"
)

// Store は有効期限付きのキー/値ストア。
// 強い一貫性は要求しない。並行する書き込みは後勝ちで構わない。
type Store interface {
	// Get はキーの値を返す。キーが存在しない場合は found=false を返す。
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set はキーに値を書き込む。ttl が0以下の場合は有効期限を設定しない。
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete はキーを削除する。存在しないキーの削除はエラーにしない。
	Delete(ctx context.Context, key string) error
}

// Namespace はキーに接頭辞を付けて論理的に分離された Store を返す。
// 接頭辞と元のキーはコロンで区切る。
func Namespace(store Store, name string) Store {
	return &namespaced{store: store, prefix: name + ":"}
}

// namespaced は接頭辞付きのStore。
type namespaced struct {
	// store は実体となるストア。
	store Store
	// prefix はキーに付与する接頭辞。
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return n.store.Set(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}
