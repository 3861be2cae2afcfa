package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/picsearch/internal/identity"
	"github.com/hitoshi/picsearch/internal/model"
)

const (
	defaultFacebookAuthURL    = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultFacebookTokenURL   = "https://graph.facebook.com/v19.0/oauth/access_token"
	defaultFacebookProfileURL = "https://graph.facebook.com/v19.0/me"
)

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

// FacebookOAuthProvider はFacebook OAuth 2.0による認証を提供する。
// emailパーミッションが拒否されている場合、プロフィールにemailは含まれず、
// identity.Normalizeが合成メールにフォールバックする。
type FacebookOAuthProvider struct {
	config     FacebookOAuthConfig
	httpClient *http.Client
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig, httpClient *http.Client) *FacebookOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFacebookAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFacebookTokenURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultFacebookProfileURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FacebookOAuthProvider{config: config, httpClient: httpClient}
}

// Name はプロバイダー種別を返す。
func (p *FacebookOAuthProvider) Name() model.Provider {
	return model.ProviderFacebook
}

// GetLoginURL はFacebook OAuthの認証URLを生成する。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"email,public_profile"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// facebookTokenResponse はFacebookのトークンエンドポイントのレスポンス。
type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// facebookProfile はGraph APIの /me エンドポイントのレスポンス。
type facebookProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// Facebookのトークンエンドポイントはクエリパラメータ付きGETを使用する。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	params := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	body, err := doRequest(p.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("facebook token exchange failed: %w", err)
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// FetchProfile はアクセストークンでGraph APIからプロフィールを取得する。
func (p *FacebookOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*identity.Profile, error) {
	params := url.Values{
		"fields": {"id,name,email,picture.type(large)"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ProfileURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := doRequest(p.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("facebook profile fetch failed: %w", err)
	}

	var fbProfile facebookProfile
	if err := json.Unmarshal(body, &fbProfile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	profile := &identity.Profile{
		ID:          fbProfile.ID,
		DisplayName: fbProfile.Name,
	}
	if fbProfile.Email != "" {
		profile.Emails = []string{fbProfile.Email}
	}
	if fbProfile.Picture.Data.URL != "" {
		profile.Photos = []string{fbProfile.Picture.Data.URL}
	}

	return profile, nil
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
