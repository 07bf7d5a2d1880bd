package initdata

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

// testBotToken はテスト用のボットトークン。
const testBotToken = "123456:TEST-bot-token"

// testNow はテストで固定する現在時刻。
var testNow = time.Unix(1_700_000_000, 0)

// newFields はテスト用の正規フィールド列を生成する。
func newFields(authDate time.Time) []Field {
	return []Field{
		{Key: "query_id", Value: "AAHdF6IQAAAAAN0XohDhrOrc"},
		{Key: "user", Value: `{"id":123456789,"first_name":"Stitch","username":"stitch"}`},
		{Key: "auth_date", Value: strconv.FormatInt(authDate.Unix(), 10)},
	}
}

// TestVerify はVerify関数を検証する。
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("正しく署名された新しい起動データからユーザーIDを取得できること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow.Add(-10*time.Second)), testBotToken)

		id, err := Verify(blob, testBotToken, testNow)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if id.UserID != "123456789" {
			t.Errorf("UserID = %q, want %q", id.UserID, "123456789")
		}
		if !id.AuthDate.Equal(testNow.Add(-10 * time.Second)) {
			t.Errorf("AuthDate = %v, want %v", id.AuthDate, testNow.Add(-10*time.Second))
		}
	})

	t.Run("400秒前の起動データは署名が正しくても期限切れになること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow.Add(-400*time.Second)), testBotToken)

		_, err := Verify(blob, testBotToken, testNow)
		if !errors.Is(err, ErrExpired) {
			t.Errorf("err = %v, want ErrExpired", err)
		}
	})

	t.Run("ちょうど300秒前の起動データは受け入れられること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow.Add(-300*time.Second)), testBotToken)

		if _, err := Verify(blob, testBotToken, testNow); err != nil {
			t.Errorf("Verify()でエラーが発生: %v", err)
		}
	})

	t.Run("hashを1文字変えると署名不一致になること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow.Add(-10*time.Second)), testBotToken)
		idx := strings.LastIndex(blob, "hash=") + len("hash=")
		replacement := "0"
		if blob[idx] == '0' {
			replacement = "1"
		}
		tampered := blob[:idx] + replacement + blob[idx+1:]

		_, err := Verify(tampered, testBotToken, testNow)
		if !errors.Is(err, ErrBadSignature) {
			t.Errorf("err = %v, want ErrBadSignature", err)
		}
	})

	t.Run("期限切れでも改ざんされていれば署名不一致が優先されること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow.Add(-time.Hour)), testBotToken)
		tampered := strings.Replace(blob, "stitch", "lilo", 1)

		_, err := Verify(tampered, testBotToken, testNow)
		if !errors.Is(err, ErrBadSignature) {
			t.Errorf("err = %v, want ErrBadSignature", err)
		}
	})

	t.Run("異なるボットトークンで署名された起動データを拒否すること", func(t *testing.T) {
		t.Parallel()

		blob := Sign(newFields(testNow), "999:other-token")

		_, err := Verify(blob, testBotToken, testNow)
		if !errors.Is(err, ErrBadSignature) {
			t.Errorf("err = %v, want ErrBadSignature", err)
		}
	})

	t.Run("空の起動データはMissingCredentialになること", func(t *testing.T) {
		t.Parallel()

		_, err := Verify("", testBotToken, testNow)
		if !errors.Is(err, ErrMissingCredential) {
			t.Errorf("err = %v, want ErrMissingCredential", err)
		}
	})

	t.Run("hashが無い起動データはMalformedCredentialになること", func(t *testing.T) {
		t.Parallel()

		_, err := Verify("auth_date=1&user=%7B%7D", testBotToken, testNow)
		if !errors.Is(err, ErrMalformedCredential) {
			t.Errorf("err = %v, want ErrMalformedCredential", err)
		}
	})

	t.Run("デコードできない起動データはMalformedCredentialになること", func(t *testing.T) {
		t.Parallel()

		_, err := Verify("user=%zz&hash=abc", testBotToken, testNow)
		if !errors.Is(err, ErrMalformedCredential) {
			t.Errorf("err = %v, want ErrMalformedCredential", err)
		}
	})

	t.Run("userが無い起動データはMissingUserになること", func(t *testing.T) {
		t.Parallel()

		blob := Sign([]Field{
			{Key: "auth_date", Value: strconv.FormatInt(testNow.Unix(), 10)},
		}, testBotToken)

		_, err := Verify(blob, testBotToken, testNow)
		if !errors.Is(err, ErrMissingUser) {
			t.Errorf("err = %v, want ErrMissingUser", err)
		}
	})

	t.Run("userに数値のidが無い場合はMissingUserIdになること", func(t *testing.T) {
		t.Parallel()

		for _, user := range []string{`{"first_name":"x"}`, `{"id":"42"}`, `{"id":0}`, `{"id":1.5}`} {
			blob := Sign([]Field{
				{Key: "auth_date", Value: strconv.FormatInt(testNow.Unix(), 10)},
				{Key: "user", Value: user},
			}, testBotToken)

			_, err := Verify(blob, testBotToken, testNow)
			if !errors.Is(err, ErrMissingUserID) {
				t.Errorf("user=%s: err = %v, want ErrMissingUserID", user, err)
			}
		}
	})

	t.Run("auth_dateが無い場合は期限切れとして扱うこと", func(t *testing.T) {
		t.Parallel()

		blob := Sign([]Field{{Key: "user", Value: `{"id":7}`}}, testBotToken)

		_, err := Verify(blob, testBotToken, testNow)
		if !errors.Is(err, ErrExpired) {
			t.Errorf("err = %v, want ErrExpired", err)
		}
	})
}

// TestVerifierMaxAge は鮮度上限の設定を検証する。
func TestVerifierMaxAge(t *testing.T) {
	t.Parallel()

	t.Run("鮮度上限を短くすると古い起動データを拒否すること", func(t *testing.T) {
		t.Parallel()

		v := NewVerifier(testBotToken, 30*time.Second)
		blob := Sign(newFields(testNow.Add(-60*time.Second)), testBotToken)

		_, err := v.Verify(blob, testNow)
		if !errors.Is(err, ErrExpired) {
			t.Errorf("err = %v, want ErrExpired", err)
		}
	})

	t.Run("期限切れのメッセージに鮮度上限が含まれること", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			maxAge time.Duration
			want   string
		}{
			{DefaultMaxAge, "initData expired (>5 min)"},
			{10 * time.Minute, "initData expired (>10 min)"},
			{30 * time.Second, "initData expired (>30s)"},
			{90 * time.Second, "initData expired (>90s)"},
		}
		for _, tt := range tests {
			v := NewVerifier(testBotToken, tt.maxAge)
			blob := Sign(newFields(testNow.Add(-tt.maxAge-time.Second)), testBotToken)

			_, err := v.Verify(blob, testNow)
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if got := verr.Message(); got != tt.want {
				t.Errorf("maxAge %v: Message() = %q, want %q", tt.maxAge, got, tt.want)
			}
		}
	})

	t.Run("0以下の鮮度上限はデフォルト値になること", func(t *testing.T) {
		t.Parallel()

		v := NewVerifier(testBotToken, 0)
		if v.maxAge != DefaultMaxAge {
			t.Errorf("maxAge = %v, want %v", v.maxAge, DefaultMaxAge)
		}
	})
}

// TestDataCheckString は正規化文字列の生成を検証する。
func TestDataCheckString(t *testing.T) {
	t.Parallel()

	t.Run("キー順にソートして改行で連結すること", func(t *testing.T) {
		t.Parallel()

		got := DataCheckString([]Field{
			{Key: "user", Value: `{"id":1}`},
			{Key: "auth_date", Value: "100"},
			{Key: "query_id", Value: "q"},
		})
		want := "auth_date=100\nquery_id=q\nuser={\"id\":1}"
		if got != want {
			t.Errorf("DataCheckString() = %q, want %q", got, want)
		}
	})

	t.Run("フィールドの並び順を変えても署名が変わらないこと", func(t *testing.T) {
		t.Parallel()

		fields := newFields(testNow)
		reversed := []Field{fields[2], fields[0], fields[1]}

		a := Signature(DataCheckString(fields), testBotToken)
		b := Signature(DataCheckString(reversed), testBotToken)
		if a != b {
			t.Errorf("署名が並び順に依存している: %q != %q", a, b)
		}

		blob := Sign(reversed, testBotToken)
		id, err := Verify(blob, testBotToken, testNow)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if id.UserID != "123456789" {
			t.Errorf("UserID = %q, want %q", id.UserID, "123456789")
		}
	})

	t.Run("入力スライスを書き換えないこと", func(t *testing.T) {
		t.Parallel()

		fields := []Field{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
		_ = DataCheckString(fields)
		if fields[0].Key != "b" {
			t.Errorf("fields[0].Key = %q, want %q", fields[0].Key, "b")
		}
	})
}

// TestSignature は2段階HMACの既知の値を検証する。
func TestSignature(t *testing.T) {
	t.Parallel()

	t.Run("64文字の小文字16進を返すこと", func(t *testing.T) {
		t.Parallel()

		sig := Signature("auth_date=1", testBotToken)
		if len(sig) != 64 {
			t.Fatalf("len(sig) = %d, want 64", len(sig))
		}
		if strings.ToLower(sig) != sig {
			t.Errorf("署名が小文字ではない: %q", sig)
		}
	})

	t.Run("署名鍵をボットトークンで直接作ると異なる値になること", func(t *testing.T) {
		t.Parallel()

		direct := sign([]byte(testBotToken), "auth_date=1")
		if direct == Signature("auth_date=1", testBotToken) {
			t.Error("ラベルによる鍵導出が行われていない")
		}
	})
}

// TestParse は起動データの分解を検証する。
func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("出現順を保ちURLデコードすること", func(t *testing.T) {
		t.Parallel()

		fields, err := Parse("b=hello+world&a=%7B%22id%22%3A1%7D&&c=")
		if err != nil {
			t.Fatalf("Parse()でエラーが発生: %v", err)
		}
		want := []Field{{"b", "hello world"}, {"a", `{"id":1}`}, {"c", ""}}
		if len(fields) != len(want) {
			t.Fatalf("len(fields) = %d, want %d", len(fields), len(want))
		}
		for i := range want {
			if fields[i] != want[i] {
				t.Errorf("fields[%d] = %+v, want %+v", i, fields[i], want[i])
			}
		}
	})
}

// TestErrorReason はエラーの理由文字列を検証する。
func TestErrorReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *Error
		want string
	}{
		{ErrMissingCredential, "MissingCredential"},
		{ErrMalformedCredential, "MalformedCredential"},
		{ErrBadSignature, "BadSignature"},
		{ErrExpired, "Expired"},
		{ErrMissingUser, "MissingUser"},
		{ErrMissingUserID, "MissingUserId"},
	}
	for _, tt := range tests {
		if got := tt.err.Reason(); got != tt.want {
			t.Errorf("Reason() = %q, want %q", got, tt.want)
		}
	}

	wrapped := malformed(errors.New("boom"))
	if !errors.Is(wrapped, ErrMalformedCredential) {
		t.Error("原因付きのエラーがErrMalformedCredentialと一致しない")
	}
}
