package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/picsearch/internal/identity"
	"github.com/hitoshi/picsearch/internal/model"
)

const (
	defaultGitHubAuthURL    = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL   = "https://github.com/login/oauth/access_token"
	defaultGitHubProfileURL = "https://api.github.com/user"
	defaultGitHubEmailsURL  = "https://api.github.com/user/emails"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	ProfileURL string
	EmailsURL  string
}

// GitHubOAuthProvider はGitHub OAuth 2.0による認証を提供する。
// プロフィールのemailは非公開設定のことが多いため、/user/emailsから
// 検証済みプライマリメールの取得を試みる（失敗しても致命ではない）。
type GitHubOAuthProvider struct {
	config     GitHubOAuthConfig
	httpClient *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig, httpClient *http.Client) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultGitHubProfileURL
	}
	if config.EmailsURL == "" {
		config.EmailsURL = defaultGitHubEmailsURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubOAuthProvider{config: config, httpClient: httpClient}
}

// Name はプロバイダー種別を返す。
func (p *GitHubOAuthProvider) Name() model.Provider {
	return model.ProviderGitHub
}

// GetLoginURL はGitHub OAuthの認証URLを生成する。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// githubTokenResponse はGitHubのトークンエンドポイントのレスポンス。
type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// githubUser は /user エンドポイントのレスポンス。
// idは数値で返るため文字列に変換して使用する。
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail は /user/emails エンドポイントの1エントリ。
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// GitHubはAcceptヘッダーを指定しないとform-encodedで返すため、
// application/jsonを明示する。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	params := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := doRequest(p.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("github token exchange failed: %w", err)
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// FetchProfile はアクセストークンでGitHubのプロフィールを取得する。
// /user/emailsの取得失敗は警告ログのみで続行し、正規化側の
// フォールバックチェーンに委ねる。
func (p *GitHubOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*identity.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	body, err := doRequest(p.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("github profile fetch failed: %w", err)
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	profile := &identity.Profile{
		DisplayName: user.Name,
		Username:    user.Login,
		Extra: identity.ExtraFields{
			Email:     user.Email,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		},
	}
	if user.ID != 0 {
		profile.ID = strconv.FormatInt(user.ID, 10)
	}

	// 検証済みプライマリメールの取得を試みる（best-effort）
	emails, err := p.fetchEmails(ctx, accessToken)
	if err != nil {
		slog.Warn("github emails fetch failed",
			slog.String("error", err.Error()),
		)
	} else {
		profile.Emails = emails
	}

	return profile, nil
}

// fetchEmails は /user/emails から検証済みプライマリメールを優先して返す。
func (p *GitHubOAuthProvider) fetchEmails(ctx context.Context, accessToken string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.EmailsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create emails request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	body, err := doRequest(p.httpClient, req)
	if err != nil {
		return nil, err
	}

	var entries []githubEmail
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse emails response: %w", err)
	}

	// プライマリかつ検証済みを先頭に、残りを後続に並べる
	var emails []string
	for _, e := range entries {
		if e.Primary && e.Verified {
			emails = append([]string{e.Email}, emails...)
		} else if e.Email != "" {
			emails = append(emails, e.Email)
		}
	}

	return emails, nil
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
