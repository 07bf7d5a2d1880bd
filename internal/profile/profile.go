package profile

import (
	"encoding/json"
	"regexp"

	"github.com/nao1215/stitch-tracker/internal/apperror"
)

// DefaultTimezone は新規作成時にタイムゾーンが指定されなかった場合の値。
const DefaultTimezone = "UTC"

// サブスクリプション状態。
const (
	SubscriptionActive   = "active"
	SubscriptionTrial    = "trial"
	SubscriptionInactive = "inactive"
)

// Profile はusersテーブルの1行。
type Profile struct {
	// ID はシステムが採番するUUID。
	ID string `db:"id" json:"id"`
	// UserID は所有者の呼び出し元ID。
	UserID             string  `db:"user_id" json:"user_id"`
	Username           *string `db:"username" json:"username"`
	FirstName          *string `db:"first_name" json:"first_name"`
	LastName           *string `db:"last_name" json:"last_name"`
	AvatarURL          *string `db:"avatar_url" json:"avatar_url"`
	Email              *string `db:"email" json:"email"`
	Timezone           string  `db:"timezone" json:"timezone"`
	SubscriptionStatus string  `db:"subscription_status" json:"subscription_status"`
	MorningSummaryTime *string `db:"morning_summary_time" json:"morning_summary_time"`
	EveningSummaryTime *string `db:"evening_summary_time" json:"evening_summary_time"`
	SummariesEnabled   bool    `db:"summaries_enabled" json:"summaries_enabled"`
	// CreatedAt はRFC3339形式の作成時刻。
	CreatedAt string `db:"created_at" json:"created_at"`
	// UpdatedAt はRFC3339形式の最終更新時刻。
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// Fields は更新要求で指定された項目。
// JSONで省略された項目は変更せず、nullが明示された項目はNULLにする。
type Fields struct {
	Username           *string `json:"username"`
	FirstName          *string `json:"first_name"`
	LastName           *string `json:"last_name"`
	AvatarURL          *string `json:"avatar_url"`
	Email              *string `json:"email"`
	Timezone           *string `json:"timezone"`
	SubscriptionStatus *string `json:"subscription_status"`
	MorningSummaryTime *string `json:"morning_summary_time"`
	EveningSummaryTime *string `json:"evening_summary_time"`
	SummariesEnabled   *bool   `json:"summaries_enabled"`

	// nulls はJSONでnullが明示されたカラム名。
	nulls map[string]bool
}

// nullableColumns はNULLを保存できるカラム。
var nullableColumns = []string{
	"username", "first_name", "last_name", "avatar_url", "email",
	"morning_summary_time", "evening_summary_time",
}

// requiredColumns はNOT NULLのカラム。nullを指定すると検証エラーになる。
var requiredColumns = []string{"timezone", "subscription_status", "summaries_enabled"}

// UnmarshalJSON は値に加えて、nullが明示されたキーを記録する。
func (f *Fields) UnmarshalJSON(data []byte) error {
	type plain Fields
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = Fields(p)
	for _, names := range [][]string{nullableColumns, requiredColumns} {
		for _, name := range names {
			if v, ok := raw[name]; ok && string(v) == "null" {
				f.SetNull(name)
			}
		}
	}
	return nil
}

// SetNull はnameのカラムをNULLにする指定を加える。
func (f *Fields) SetNull(name string) {
	if f.nulls == nil {
		f.nulls = make(map[string]bool)
	}
	f.nulls[name] = true
}

// column はFieldsの1項目とカラム名の組。
type column struct {
	name  string
	value any
}

// columns は指定された項目だけをカラム順に返す。nullが明示された項目の値はnil。
// カラム名は固定のリストからのみ取り、入力から組み立てることはない。
func (f Fields) columns() []column {
	var cols []column
	add := func(name string, v *string) {
		switch {
		case v != nil:
			cols = append(cols, column{name: name, value: *v})
		case f.nulls[name]:
			cols = append(cols, column{name: name, value: nil})
		}
	}
	add("username", f.Username)
	add("first_name", f.FirstName)
	add("last_name", f.LastName)
	add("avatar_url", f.AvatarURL)
	add("email", f.Email)
	add("timezone", f.Timezone)
	add("subscription_status", f.SubscriptionStatus)
	add("morning_summary_time", f.MorningSummaryTime)
	add("evening_summary_time", f.EveningSummaryTime)
	switch {
	case f.SummariesEnabled != nil:
		cols = append(cols, column{name: "summaries_enabled", value: *f.SummariesEnabled})
	case f.nulls["summaries_enabled"]:
		cols = append(cols, column{name: "summaries_enabled", value: nil})
	}
	return cols
}

// Empty は更新項目が1つも指定されていないかを返す。
func (f Fields) Empty() bool {
	return len(f.columns()) == 0
}

// summaryTimePattern はHH:MM形式の時刻。
var summaryTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate は指定された項目の値を検証する。
func (f Fields) Validate() error {
	for _, name := range requiredColumns {
		if f.nulls[name] {
			return apperror.ValidationFailed("%s must not be null", name)
		}
	}
	if f.Timezone != nil && *f.Timezone == "" {
		return apperror.ValidationFailed("timezone must not be empty")
	}
	if f.SubscriptionStatus != nil {
		switch *f.SubscriptionStatus {
		case SubscriptionActive, SubscriptionTrial, SubscriptionInactive:
		default:
			return apperror.ValidationFailed("invalid subscription_status: %q", *f.SubscriptionStatus)
		}
	}
	for _, c := range []column{
		{name: "morning_summary_time", value: f.MorningSummaryTime},
		{name: "evening_summary_time", value: f.EveningSummaryTime},
	} {
		v, _ := c.value.(*string)
		if v != nil && *v != "" && !summaryTimePattern.MatchString(*v) {
			return apperror.ValidationFailed("%s must be HH:MM: %q", c.name, *v)
		}
	}
	return nil
}

// newProfile は新規作成する行を組み立てる。
func newProfile(id, userID string, f Fields, now string) *Profile {
	p := &Profile{
		ID:                 id,
		UserID:             userID,
		Username:           f.Username,
		FirstName:          f.FirstName,
		LastName:           f.LastName,
		AvatarURL:          f.AvatarURL,
		Email:              f.Email,
		Timezone:           DefaultTimezone,
		SubscriptionStatus: SubscriptionInactive,
		MorningSummaryTime: f.MorningSummaryTime,
		EveningSummaryTime: f.EveningSummaryTime,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if f.Timezone != nil {
		p.Timezone = *f.Timezone
	}
	if f.SubscriptionStatus != nil {
		p.SubscriptionStatus = *f.SubscriptionStatus
	}
	if f.SummariesEnabled != nil {
		p.SummariesEnabled = *f.SummariesEnabled
	}
	return p
}
