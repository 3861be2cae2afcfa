// Package model はドメインモデルを定義する。
package model

import "time"

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderGoogle はGoogle OAuthを示す。
	ProviderGoogle Provider = "google"
	// ProviderFacebook はFacebook OAuthを示す。
	ProviderFacebook Provider = "facebook"
	// ProviderGitHub はGitHub OAuthを示す。
	ProviderGitHub Provider = "github"
)

// IsValid はサポート対象のプロバイダーかどうかを返す。
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderFacebook, ProviderGitHub:
		return true
	}
	return false
}

// Identity は正規化済みのユーザー識別情報を表す。
// プロバイダーごとのプロフィール形状の差異を吸収した後の正準形。
type Identity struct {
	Provider   Provider
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// Account はサービス利用アカウントを表す。
// (Provider, ProviderID) の組がグローバルに一意であり、作成後は不変。
// 同一メールアドレスでもプロバイダーが異なれば別アカウントとして扱い、
// アカウントの統合は行わない。
type Account struct {
	ID         string
	Provider   Provider
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
