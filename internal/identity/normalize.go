// Package identity はプロバイダー固有のプロフィールを正準形に正規化する。
// 正規化は副作用のない純関数であり、プロバイダーごとのフォールバック規則を適用する。
package identity

import (
	"fmt"

	"github.com/hitoshi/picsearch/internal/model"
)

// プロフィールにnameが存在しない場合のプレースホルダー名。
const (
	placeholderNameGoogle   = "Google User"
	placeholderNameFacebook = "Facebook User"
	placeholderNameGitHub   = "GitHub User"
)

// Profile はOAuthプロバイダーから取得した生のプロフィールを表す。
// プロバイダーごとに埋まるフィールドが異なり、欠落は正規化側の
// フォールバック規則で吸収する。
type Profile struct {
	// ID はプロバイダー内で一意なユーザーID。全プロバイダーで必須。
	ID string
	// DisplayName は表示名。
	DisplayName string
	// Username はハンドル名（GitHubのlogin等）。
	Username string
	// Emails はプロフィールに含まれるメールアドレスのリスト。
	Emails []string
	// Photos はプロフィール画像URLのリスト。
	Photos []string
	// Extra はプロバイダー拡張フィールド（GitHubの_json相当）。
	Extra ExtraFields
}

// ExtraFields はプロバイダー拡張プロフィールのフィールドを表す。
type ExtraFields struct {
	Email     string
	Name      string
	AvatarURL string
}

// Normalize はプロバイダー固有のプロフィールを正準形のIdentityに変換する。
// IDの欠落のみが全プロバイダー共通の致命エラー。その他の欠落は
// プロバイダーごとの規則でプレースホルダー値・合成値に置き換える。
func Normalize(provider model.Provider, profile Profile) (*model.Identity, error) {
	if profile.ID == "" {
		return nil, model.NewMissingRequiredFieldError(provider, "id")
	}

	switch provider {
	case model.ProviderGoogle:
		return normalizeGoogle(profile)
	case model.ProviderFacebook:
		return normalizeFacebook(profile)
	case model.ProviderGitHub:
		return normalizeGitHub(profile)
	}
	return nil, model.NewUnknownProviderError(string(provider))
}

// normalizeGoogle はGoogleプロフィールを正規化する。
// emailはemailsリストに存在することが必須であり、欠落は致命エラー。
func normalizeGoogle(profile Profile) (*model.Identity, error) {
	email := firstNonEmpty(profile.Emails...)
	if email == "" {
		return nil, model.NewMissingRequiredFieldError(model.ProviderGoogle, "email")
	}

	name := profile.DisplayName
	if name == "" {
		name = placeholderNameGoogle
	}

	return &model.Identity{
		Provider:   model.ProviderGoogle,
		ProviderID: profile.ID,
		Email:      email,
		Name:       name,
		AvatarURL:  firstNonEmpty(profile.Photos...),
	}, nil
}

// normalizeFacebook はFacebookプロフィールを正規化する。
// emailが欠落している場合は `<providerId>@facebook.com` を決定論的に合成し、
// アカウント作成を可能にする。
func normalizeFacebook(profile Profile) (*model.Identity, error) {
	email := firstNonEmpty(profile.Emails...)
	if email == "" {
		email = fmt.Sprintf("%s@facebook.com", profile.ID)
	}

	name := profile.DisplayName
	if name == "" {
		name = placeholderNameFacebook
	}

	return &model.Identity{
		Provider:   model.ProviderFacebook,
		ProviderID: profile.ID,
		Email:      email,
		Name:       name,
		AvatarURL:  firstNonEmpty(profile.Photos...),
	}, nil
}

// normalizeGitHub はGitHubプロフィールを正規化する。
// フォールバックチェーン:
//   - email: emailsリスト → 拡張フィールド → `<username>@github.com` を合成
//   - name:  表示名 → 拡張フィールド → ハンドル名 → プレースホルダー
//   - avatar: 拡張フィールド → photosリスト → ハンドル名から合成したURL
func normalizeGitHub(profile Profile) (*model.Identity, error) {
	email := firstNonEmpty(append(append([]string{}, profile.Emails...), profile.Extra.Email)...)
	if email == "" {
		email = fmt.Sprintf("%s@github.com", profile.Username)
	}

	name := firstNonEmpty(profile.DisplayName, profile.Extra.Name, profile.Username)
	if name == "" {
		name = placeholderNameGitHub
	}

	avatar := firstNonEmpty(append([]string{profile.Extra.AvatarURL}, profile.Photos...)...)
	if avatar == "" {
		avatar = fmt.Sprintf("https://github.com/%s.png", profile.Username)
	}

	return &model.Identity{
		Provider:   model.ProviderGitHub,
		ProviderID: profile.ID,
		Email:      email,
		Name:       name,
		AvatarURL:  avatar,
	}, nil
}

// firstNonEmpty は最初の非空文字列を返す。すべて空の場合は空文字列を返す。
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
