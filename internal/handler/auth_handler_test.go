package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/picsearch/internal/model"
)

func containsStr(s, substr string) bool {
	return strings.Contains(s, substr)
}

// withProvider はchiのURLパラメータをリクエストコンテキストに注入する。
func withProvider(req *http.Request, provider string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(provider model.Provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider model.Provider, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.Account, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) GetLoginURL(provider model.Provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "https://example.com/oauth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.Account, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		ClientURL:     "http://localhost:3000",
		CookieDomain:  "",
		CookieSecure:  false,
		SessionMaxAge: 86400,
	}
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToOAuthURL(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(provider model.Provider, state string) (string, error) {
			if provider != model.ProviderGoogle {
				t.Errorf("provider = %q, want google", provider)
			}
			return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google", nil), "google")
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	location := resp.Header.Get("Location")
	if !containsStr(location, "accounts.google.com") {
		t.Errorf("Location = %q, should contain google oauth URL", location)
	}

	// stateクッキーが設定されること
	stateCookie := findCookie(resp.Cookies(), "oauth_state")
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("oauth_state cookie should be set")
	}
	if !stateCookie.HttpOnly {
		t.Error("oauth_state cookie should be HttpOnly")
	}
	if !containsStr(location, stateCookie.Value) {
		t.Error("redirect URL should carry the same state as the cookie")
	}
}

func TestAuthHandler_Login_UnknownProvider_Returns404(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(provider model.Provider, state string) (string, error) {
			return "", model.NewUnknownProviderError(string(provider))
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/twitter", nil), "twitter")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
}

func TestAuthHandler_Callback_Success_SetsCookieAndRedirects(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
			if code != "test-code" {
				t.Errorf("code = %q, want test-code", code)
			}
			return &model.Session{
				ID:        "session-id-abc",
				AccountID: "account-id-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=test-state", nil), "google")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	// フロントエンドにリダイレクトされること
	location := resp.Header.Get("Location")
	if location != "http://localhost:3000" {
		t.Errorf("Location = %q, want http://localhost:3000", location)
	}

	// セッションCookieが設定されること（HTTP Only）
	sessionCookie := findCookie(resp.Cookies(), "session_id")
	if sessionCookie == nil {
		t.Fatal("session_id cookie should be set")
	}
	if sessionCookie.Value != "session-id-abc" {
		t.Errorf("session cookie value = %q, want session-id-abc", sessionCookie.Value)
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

// プロバイダー側エラー（キャンセルを含む）はエラーコードを引き継いで
// ログイン画面にリダイレクトする
func TestAuthHandler_Callback_ProviderError_RedirectsToLogin(t *testing.T) {
	callbackCalled := false
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
			callbackCalled = true
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied", nil), "google")
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	location := resp.Header.Get("Location")
	if location != "http://localhost:3000/login?error=access_denied" {
		t.Errorf("Location = %q, want login redirect with provider error code", location)
	}
	if callbackCalled {
		t.Error("service should not be called when provider returned an error")
	}
}

func TestAuthHandler_Callback_StateMismatch_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	tests := []struct {
		name   string
		target string
		cookie string
	}{
		{"missing state cookie", "/auth/google/callback?code=c&state=s", ""},
		{"state mismatch", "/auth/google/callback?code=c&state=query-state", "cookie-state"},
		{"empty query state", "/auth/google/callback?code=c", "cookie-state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withProvider(httptest.NewRequest(http.MethodGet, tt.target, nil), "google")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			h.Callback(w, req)

			if w.Result().StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Result().StatusCode)
			}
		})
	}
}

func TestAuthHandler_Callback_MissingCode_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=test-state", nil), "google")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

// プロフィール不備による正規化失敗はauth_failedコードでログイン画面に戻す
func TestAuthHandler_Callback_NormalizationFailure_RedirectsWithAuthFailed(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
			return nil, model.NewMissingRequiredFieldError("google", "email")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil), "google")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if got := resp.Header.Get("Location"); got != "http://localhost:3000/login?error=auth_failed" {
		t.Errorf("Location = %q, want auth_failed redirect", got)
	}
}

func TestAuthHandler_Callback_UpstreamFailure_Returns500(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
			return nil, model.NewUpstreamUnavailableError("google")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil), "google")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	// 本番モードではエラー詳細を含めない
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}
	if _, ok := body["detail"]; ok {
		t.Error("error detail must not be exposed outside development")
	}
}

func TestAuthHandler_Callback_DevelopmentExposesDetail(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
			return nil, errors.New("storage write failed")
		},
	}
	config := testAuthConfig()
	config.Development = true
	h := NewAuthHandler(svc, config)

	req := withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil), "google")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}
	if !containsStr(body["detail"], "storage write failed") {
		t.Errorf("detail = %q, should contain the error in development", body["detail"])
	}
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	var loggedOutSession string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOutSession = sessionID
			return nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if loggedOutSession != "session-abc" {
		t.Errorf("logged out session = %q, want session-abc", loggedOutSession)
	}

	cookie := findCookie(resp.Cookies(), "session_id")
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("session cookie should be cleared")
	}
}

func TestAuthHandler_Logout_NoSession_StillSucceeds(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
}

func TestAuthHandler_Logout_StorageFailure_Returns500(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			return model.NewLogoutFailedError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	// 失敗してもCookieはクリアされる
	cookie := findCookie(resp.Cookies(), "session_id")
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("session cookie should be cleared even on failure")
	}
}

func TestAuthHandler_CurrentUser_Authenticated(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
			return &model.Account{
				ID:       "account-1",
				Provider: model.ProviderGitHub,
				Email:    "octo@example.com",
				Name:     "The Octocat",
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	h.CurrentUser(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}
	if body["authenticated"] != true {
		t.Error("authenticated should be true")
	}
	user, ok := body["user"].(map[string]interface{})
	if !ok {
		t.Fatal("user object should be present")
	}
	if user["id"] != "account-1" || user["provider"] != "github" {
		t.Errorf("user = %v", user)
	}
}

func TestAuthHandler_CurrentUser_Anonymous_Returns200(t *testing.T) {
	tests := []struct {
		name  string
		setup func(req *http.Request)
		svc   *mockAuthService
	}{
		{
			name:  "no cookie",
			setup: func(req *http.Request) {},
			svc:   &mockAuthService{},
		},
		{
			name: "invalid session",
			setup: func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: "gone"})
			},
			svc: &mockAuthService{},
		},
		{
			name: "storage error treated as anonymous",
			setup: func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: "some"})
			},
			svc: &mockAuthService{
				getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
					return nil, errors.New("db down")
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(tt.svc, testAuthConfig())

			req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			h.CurrentUser(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("response should be JSON: %v", err)
			}
			if body["authenticated"] != false {
				t.Error("authenticated should be false")
			}
			if _, ok := body["user"]; ok {
				t.Error("user object should be absent for anonymous")
			}
		})
	}
}

// findCookie は名前でCookieを検索する。
func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
