package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/picsearch/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider, provider_id, email, name, avatar_url, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Provider, &account.ProviderID, &account.Email,
		&account.Name, &account.AvatarURL, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// FindByProviderID は(provider, provider_id)でアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider, provider_id, email, name, avatar_url, created_at, updated_at
		 FROM accounts
		 WHERE provider = $1 AND provider_id = $2`,
		provider, providerID,
	).Scan(&account.ID, &account.Provider, &account.ProviderID, &account.Email,
		&account.Name, &account.AvatarURL, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by provider ID: %w", err)
	}

	return account, nil
}

// FindOrCreate は(provider, provider_id)でアカウントを検索し、
// 存在しない場合は作成する。作成の原子性はaccountsテーブルの
// UNIQUE(provider, provider_id)制約で保証する。同一キーの同時初回ログインでは
// INSERTが1つだけ成功し、負けた側は既存行を再検索して解決する。
// アプリケーション層のcheck-then-insertは競合を生むため使用しない。
func (r *PostgresAccountRepo) FindOrCreate(ctx context.Context, account *model.Account) (*model.Account, bool, error) {
	created := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, provider, provider_id, email, name, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (provider, provider_id) DO NOTHING
		 RETURNING id, provider, provider_id, email, name, avatar_url, created_at, updated_at`,
		account.ID, account.Provider, account.ProviderID, account.Email,
		account.Name, account.AvatarURL, account.CreatedAt, account.UpdatedAt,
	).Scan(&created.ID, &created.Provider, &created.ProviderID, &created.Email,
		&created.Name, &created.AvatarURL, &created.CreatedAt, &created.UpdatedAt)

	if err == nil {
		return created, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to insert account: %w", err)
	}

	// INSERTが競合した場合: 勝者の行を取得する
	existing, err := r.FindByProviderID(ctx, account.Provider, account.ProviderID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// 一意制約が存在すればここには到達しない
		return nil, false, model.NewAccountConflictError(account.Provider, account.ProviderID)
	}

	return existing, false, nil
}

// UpdateProfile は可変フィールド（email, name, avatar_url）を更新する。
// (provider, provider_id)の複合キーは不変であり更新しない。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, account *model.Account) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET email = $2, name = $3, avatar_url = $4, updated_at = now()
		 WHERE id = $1`,
		account.ID, account.Email, account.Name, account.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", account.ID)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
