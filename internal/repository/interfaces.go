// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/picsearch/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByProviderID は(provider, provider_id)でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.Account, error)

	// FindOrCreate は(provider, provider_id)でアカウントを検索し、
	// 存在しない場合は渡されたアカウントを作成する。
	// 作成の原子性はストレージ層の一意制約で保証され、同一キーでの
	// 同時初回ログインでも作成されるアカウントは必ず1つになる。
	// 戻り値のboolは新規作成された場合にtrue。
	FindOrCreate(ctx context.Context, account *model.Account) (*model.Account, bool, error)

	// UpdateProfile は可変フィールド（email, name, avatar_url）を更新する。
	// (provider, provider_id)の複合キーは不変であり更新対象外。
	UpdateProfile(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。
	// 見つからない場合および期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	// 削除された場合はtrue、存在しなかった場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SearchEventRepository は検索イベントの永続化インターフェース。
// イベントは追記専用であり、更新・削除のメソッドは提供しない。
type SearchEventRepository interface {
	// Create は検索イベントを追記する。
	Create(ctx context.Context, event *model.SearchEvent) error

	// ListByAccountID は指定アカウントの検索イベントを新しい順に返す。
	// limit件に切り詰める。
	ListByAccountID(ctx context.Context, accountID string, limit int) ([]*model.SearchEvent, error)

	// TopTerms は全イベントを語の完全一致でグループ化し、出現回数の
	// 降順で上位k件を返す。同数の場合は語の辞書順（昇順）で安定化する。
	TopTerms(ctx context.Context, k int) ([]*model.TrendingEntry, error)
}
