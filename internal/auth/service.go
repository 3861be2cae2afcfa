// Package auth はOAuth認証フロー、アカウント解決、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/picsearch/internal/identity"
	"github.com/hitoshi/picsearch/internal/model"
	"github.com/hitoshi/picsearch/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 認可コードの交換とプロフィール取得の2つの能力を持つ。
// Google、Facebook、GitHubの3実装があり、プロフィール形状の差異は
// identity.Normalizeが吸収する。
type OAuthProvider interface {
	// Name はプロバイダー種別を返す。
	Name() model.Provider
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchProfile はアクセストークンで生プロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*identity.Profile, error)
}

// MetricsRecorder は認証結果のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordLoginSuccess(provider string)
	RecordLoginFailure(provider string, reason string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）

	// RefreshProfileOnLogin は再ログイン時に既存アカウントの可変フィールド
	// （email, name, avatar）をプロバイダーの最新値で更新するかどうか。
	// (provider, provider_id)の複合キーはこの設定に関わらず不変。
	RefreshProfileOnLogin bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   map[model.Provider]OAuthProvider
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
// providersには設定済みのプロバイダーのみを渡す。metricsはnil可。
func NewService(
	providers []OAuthProvider,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	m := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers:   m,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
	}
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
// 未サポート・未設定のプロバイダーの場合はエラーを返す。
func (s *Service) GetLoginURL(provider model.Provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", model.NewUnknownProviderError(string(provider))
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// フロー: コード交換 → プロフィール取得 → 正規化 → アカウント解決 → セッション発行。
// 初回ログインではアカウントを作成し、2回目以降は(provider, provider_id)で
// 既存アカウントに解決する。同一メールの別プロバイダーは別アカウントになる。
func (s *Service) HandleCallback(ctx context.Context, provider model.Provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewUnknownProviderError(string(provider))
	}

	// 1. 認可コードをアクセストークンに交換
	accessToken, err := p.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("oauth code exchange failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		s.recordLoginFailure(provider, "exchange_failed")
		return nil, model.NewUpstreamUnavailableError(string(provider))
	}

	// 2. 生プロフィールを取得
	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		slog.Error("oauth profile fetch failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		s.recordLoginFailure(provider, "profile_fetch_failed")
		return nil, model.NewUpstreamUnavailableError(string(provider))
	}

	// 3. プロフィールを正準形に正規化（純関数）
	ident, err := identity.Normalize(provider, *profile)
	if err != nil {
		slog.Warn("profile normalization failed",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		s.recordLoginFailure(provider, "normalization_failed")
		return nil, err
	}

	// 4. アカウント解決
	account, err := s.resolveAccount(ctx, ident)
	if err != nil {
		s.recordLoginFailure(provider, "account_resolution_failed")
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	// 5. セッションを発行
	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		s.recordLoginFailure(provider, "session_creation_failed")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.recordLoginSuccess(provider)
	return session, nil
}

// resolveAccount は正規化済みidentityをアカウントに解決する。
// 存在しない場合は作成する。作成の原子性はストレージ層の一意制約で
// 保証され、同時初回ログインでも重複アカウントは生まれない。
func (s *Service) resolveAccount(ctx context.Context, ident *model.Identity) (*model.Account, error) {
	now := time.Now()
	candidate := &model.Account{
		ID:         uuid.New().String(),
		Provider:   ident.Provider,
		ProviderID: ident.ProviderID,
		Email:      ident.Email,
		Name:       ident.Name,
		AvatarURL:  ident.AvatarURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	account, created, err := s.accountRepo.FindOrCreate(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if created {
		slog.Info("new account created",
			slog.String("account_id", account.ID),
			slog.String("provider", string(account.Provider)),
		)
		return account, nil
	}

	slog.Info("existing account logged in",
		slog.String("account_id", account.ID),
		slog.String("provider", string(account.Provider)),
	)

	// 再ログイン時の可変フィールド更新は明示的な設定で制御する
	if s.config.RefreshProfileOnLogin {
		account.Email = ident.Email
		account.Name = ident.Name
		account.AvatarURL = ident.AvatarURL
		if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
			return nil, err
		}
	}

	return account, nil
}

// Logout はセッションを破棄する。
// セッションキーが空、またはセッションが既に存在しない場合はno-opとして成功する。
// ストレージ障害で無効化を確認できなかった場合はLogoutFailedを返し、
// no-opケースとは区別する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	deleted, err := s.sessionRepo.DeleteByID(ctx, sessionID)
	if err != nil {
		slog.Error("failed to invalidate session",
			slog.String("error", err.Error()),
		)
		return model.NewLogoutFailedError()
	}

	if !deleted {
		slog.Info("logout no-op: session already gone")
		return nil
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションキーから現在のアカウントを取得する。
// セッションが無効・期限切れ・不在の場合は(nil, nil)を返す（未認証と等価）。
// エラーを返すのはストレージ障害時のみ。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	return account, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) recordLoginSuccess(provider model.Provider) {
	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(string(provider))
	}
}

func (s *Service) recordLoginFailure(provider model.Provider, reason string) {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(string(provider), reason)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
