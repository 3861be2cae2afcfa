package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeAccountConflict      = "ACCOUNT_CONFLICT"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeInvalidTerm          = "INVALID_TERM"
	ErrCodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	ErrCodeLogoutFailed         = "LOGOUT_FAILED"
	ErrCodeUnknownProvider      = "UNKNOWN_PROVIDER"
)

// NewMissingRequiredFieldError はプロフィール正規化で必須フィールドが
// 欠落していた場合のエラーを生成する。該当ログイン試行のみ失敗させる。
func NewMissingRequiredFieldError(provider Provider, field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingRequiredField,
		Message:  fmt.Sprintf("%sのプロフィールに必須フィールドがありません: %s", provider, field),
		Category: "auth",
		Action:   "プロバイダー側でプロフィール情報を公開してから再度ログインしてください。",
	}
}

// NewAccountConflictError はアカウント作成時の一意性違反エラーを生成する。
// 一意制約がストレージ層で機能していれば発生し得ないため、
// 観測された場合はストレージ層の致命的な不具合として扱う。
func NewAccountConflictError(provider Provider, providerID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountConflict,
		Message:  fmt.Sprintf("アカウントの一意性制約に矛盾が検出されました: %s/%s", provider, providerID),
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewUnauthenticatedError は有効なセッションを持たないリクエストのエラーを生成する。
// 再ログインにより回復可能。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTermError は空または空白のみの検索語エラーを生成する。
func NewInvalidTermError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTerm,
		Message:  "検索語を入力してください。",
		Category: "validation",
		Action:   "空白以外の文字を含む検索語を入力してください。",
	}
}

// NewUpstreamUnavailableError は外部プロバイダーまたはストレージの
// タイムアウト・障害エラーを生成する。呼び出し側でリトライ可能。
func NewUpstreamUnavailableError(upstream string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("外部サービスへの接続に失敗しました: %s", upstream),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewLogoutFailedError はセッション無効化を完了できなかった場合のエラーを生成する。
// 「すでにログアウト済み」のno-opケースとは区別される。
func NewLogoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLogoutFailed,
		Message:  "ログアウト処理を完了できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnknownProviderError は未サポートのプロバイダー指定エラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("サポートされていないプロバイダーです: %s", provider),
		Category: "validation",
		Action:   "google、facebook、githubのいずれかを指定してください。",
	}
}
