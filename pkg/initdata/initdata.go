package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultMaxAge は起動データの鮮度の上限。auth_date がこれより古いものは期限切れとして拒否する。
const DefaultMaxAge = 300 * time.Second

// signingLabel は署名鍵導出に使うドメイン分離ラベル。発行元と一致させる必要がある。
const signingLabel = "WebAppData"

const (
	fieldHash     = "hash"
	fieldAuthDate = "auth_date"
	fieldUser     = "user"
)

// Field は起動データ中の1つのキー/値ペア。
type Field struct {
	// Key はフィールド名。
	Key string
	// Value はURLデコード済みの値。
	Value string
}

// Identity は検証済みの呼び出し元を表す。
type Identity struct {
	// UserID は埋め込みユーザー記述子の数値IDを10進文字列にしたもの。
	UserID string
	// AuthDate は起動データの発行時刻。
	AuthDate time.Time
}

// Verifier は共有シークレットと鮮度上限を保持する起動データ検証器。
// 状態を持たないため複数のゴルーチンから同時に使用できる。
type Verifier struct {
	// signingKey は共有シークレットから導出済みの署名鍵。
	signingKey []byte
	// maxAge は許容する auth_date の経過時間。
	maxAge time.Duration
	// errExpired は maxAge を含むメッセージの期限切れエラー。
	errExpired *Error
}

// NewVerifier は新しい検証器を生成する。maxAge が0以下の場合は DefaultMaxAge を使う。
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{
		signingKey: deriveSigningKey(botToken),
		maxAge:     maxAge,
		errExpired: expired(maxAge),
	}
}

// Verify は起動データを検証し、呼び出し元のIDを返す。
// DefaultMaxAge を鮮度上限として使う簡易版。
func Verify(blob, botToken string, now time.Time) (Identity, error) {
	return NewVerifier(botToken, DefaultMaxAge).Verify(blob, now)
}

// Verify は起動データを検証し、呼び出し元のIDを返す。
// 失敗時は本パッケージの *Error（errors.Is で各センチネルと比較可能）を返す。
func (v *Verifier) Verify(blob string, now time.Time) (Identity, error) {
	if blob == "" {
		return Identity{}, ErrMissingCredential
	}

	fields, err := Parse(blob)
	if err != nil {
		return Identity{}, malformed(err)
	}

	hash, ok := lookup(fields, fieldHash)
	if !ok || hash == "" {
		return Identity{}, ErrMalformedCredential
	}
	rest := without(fields, fieldHash)

	expected := sign(v.signingKey, DataCheckString(rest))
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return Identity{}, ErrBadSignature
	}

	authDate, err := parseAuthDate(rest)
	if err != nil || now.Sub(authDate) > v.maxAge {
		return Identity{}, v.errExpired
	}

	userJSON, ok := lookup(rest, fieldUser)
	if !ok || userJSON == "" {
		return Identity{}, ErrMissingUser
	}
	userID, err := extractUserID(userJSON)
	if err != nil {
		return Identity{}, err
	}

	return Identity{UserID: userID, AuthDate: authDate}, nil
}

// Parse はURLエンコードされた起動データを出現順のフィールド列に分解する。
// 空のセグメントは無視する。同じキーが複数回現れた場合はすべて保持する。
func Parse(blob string) ([]Field, error) {
	segments := strings.Split(blob, "&")
	fields := make([]Field, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(seg, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("キーのデコードに失敗: %w", err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%s の値のデコードに失敗: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, nil
}

// DataCheckString は署名対象の正規化文字列を返す。
// フィールドをキーのバイト順で安定ソートし、"key=value" を改行で連結する。
// 入力の並び順には依存しない。
func DataCheckString(fields []Field) string {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	lines := make([]string, 0, len(sorted))
	for _, f := range sorted {
		lines = append(lines, f.Key+"="+f.Value)
	}
	return strings.Join(lines, "\n")
}

// Signature はボットトークンとデータチェック文字列から期待される hash（小文字16進）を計算する。
func Signature(dataCheckString, botToken string) string {
	return sign(deriveSigningKey(botToken), dataCheckString)
}

// Sign はフィールド列に hash を付与したURLエンコード済みの起動データを生成する。
// フィールドは与えられた順序のまま出力し、hash を末尾に追加する。
// 開発ツールとテストで正規の起動データを作るために使用する。
func Sign(fields []Field, botToken string) string {
	rest := without(fields, fieldHash)
	parts := make([]string, 0, len(rest)+1)
	for _, f := range rest {
		parts = append(parts, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	parts = append(parts, fieldHash+"="+Signature(DataCheckString(rest), botToken))
	return strings.Join(parts, "&")
}

// deriveSigningKey は HMAC-SHA256(key=ラベル, message=ボットトークン) で署名鍵を導出する。
func deriveSigningKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(signingLabel))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// sign は HMAC-SHA256(key=署名鍵, message=データチェック文字列) を小文字16進で返す。
func sign(signingKey []byte, dataCheckString string) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(dataCheckString))
	return hex.EncodeToString(mac.Sum(nil))
}

// lookup は最初に現れたキーの値を返す。
func lookup(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// without は指定キーをすべて取り除いたフィールド列を返す。
func without(fields []Field, key string) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Key != key {
			out = append(out, f)
		}
	}
	return out
}

// parseAuthDate は auth_date（UNIX秒）を時刻に変換する。欠落時はエポックとして扱う。
func parseAuthDate(fields []Field) (time.Time, error) {
	raw, ok := lookup(fields, fieldAuthDate)
	if !ok || raw == "" {
		return time.Unix(0, 0), nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth_date の解析に失敗: %w", err)
	}
	return time.Unix(sec, 0), nil
}

// extractUserID はユーザー記述子JSONから0以外の整数IDを取り出す。
func extractUserID(userJSON string) (string, error) {
	if !gjson.Valid(userJSON) {
		return "", malformed(fmt.Errorf("user がJSONではない"))
	}
	id := gjson.Get(userJSON, "id")
	if !id.Exists() || id.Type != gjson.Number {
		return "", ErrMissingUserID
	}
	n, err := strconv.ParseInt(id.Raw, 10, 64)
	if err != nil || n == 0 {
		return "", ErrMissingUserID
	}
	return strconv.FormatInt(n, 10), nil
}
