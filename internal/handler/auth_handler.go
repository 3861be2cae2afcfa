// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/picsearch/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(provider model.Provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider model.Provider, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientURL     string // ログイン完了後のリダイレクト先（フロントエンド）
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int  // セッションCookieの有効期間（秒）
	Development   bool // trueの場合、500レスポンスにエラー詳細を含める
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
// Google・Facebook・GitHubの3プロバイダーを同一のハンドラーで処理し、
// プロバイダー名はURLパラメータで受け取る。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := model.Provider(chi.URLParam(r, "provider"))

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		h.writeServerError(w, err)
		return
	}

	loginURL, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
//
// プロバイダーがerrorパラメータ付きでリダイレクトしてきた場合
// （ユーザーのキャンセルを含む）は、エラーコードをそのまま引き継いで
// フロントエンドのログイン画面に戻す。プロフィールの正規化失敗も
// ログイン画面に戻すが、コードはauth_failedに固定してキャンセルと区別する。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := model.Provider(chi.URLParam(r, "provider"))

	// 1. プロバイダー側エラーの引き継ぎ
	if provErr := r.URL.Query().Get("error"); provErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", string(provider)),
			slog.String("error", provErr),
		)
		h.redirectToLogin(w, r, provErr)
		return
	}

	// 2. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", string(provider)),
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 3. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 4. 認証処理
	session, err := h.service.HandleCallback(r.Context(), provider, code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeMissingRequiredField {
			// プロフィール不備はリトライ可能なためログイン画面に戻す
			h.redirectToLogin(w, r, "auth_failed")
			return
		}
		slog.Error("oauth callback failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		h.writeServerError(w, err)
		return
	}

	// 5. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.ClientURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
// セッションが既に存在しない場合も成功として200を返す。
// ストレージ障害で無効化を確認できなかった場合のみ500を返す。
// どちらの場合もCookieはクリアする。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var logoutErr error
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		logoutErr = h.service.Logout(r.Context(), cookie.Value)
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if logoutErr != nil {
		slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		handleServiceError(w, logoutErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "ログアウトしました。",
	})
}

// CurrentUser は現在のログイン状態とアカウント情報を返す。
// GET /auth/user
// 未認証でも200を返す（authenticated: false）。セッション解決の失敗は
// 未認証と等価に扱う。
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	var account *model.Account

	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		account, err = h.service.GetCurrentUser(r.Context(), cookie.Value)
		if err != nil {
			slog.Warn("failed to resolve current user", slog.String("error", err.Error()))
			account = nil
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if account == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": false,
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"authenticated": true,
		"user": map[string]string{
			"id":         account.ID,
			"provider":   string(account.Provider),
			"email":      account.Email,
			"name":       account.Name,
			"avatar_url": account.AvatarURL,
		},
	})
}

// redirectToLogin はフロントエンドのログイン画面にエラーコード付きでリダイレクトする。
func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, errorCode string) {
	target := h.config.ClientURL + "/login?error=" + url.QueryEscape(errorCode)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// writeServerError は500レスポンスを書き込む。
// 開発環境でのみエラー詳細を含め、本番では一般的なメッセージに留める。
func (h *AuthHandler) writeServerError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	body := map[string]string{
		"error": "認証処理に失敗しました。",
	}
	if h.config.Development && err != nil {
		body["detail"] = err.Error()
	}
	json.NewEncoder(w).Encode(body)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
