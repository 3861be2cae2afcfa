package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/picsearch/internal/model"
)

// PostgresSearchEventRepo はPostgreSQLを使用した検索イベントリポジトリ。
// search_eventsテーブルは追記専用であり、UPDATE/DELETEは発行しない。
type PostgresSearchEventRepo struct {
	db *sql.DB
}

// NewPostgresSearchEventRepo はPostgresSearchEventRepoを生成する。
func NewPostgresSearchEventRepo(db *sql.DB) *PostgresSearchEventRepo {
	return &PostgresSearchEventRepo{db: db}
}

// Create は検索イベントを追記する。
func (r *PostgresSearchEventRepo) Create(ctx context.Context, event *model.SearchEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_events (id, account_id, term, searched_at)
		 VALUES ($1, $2, $3, $4)`,
		event.ID, event.AccountID, event.Term, event.SearchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create search event: %w", err)
	}
	return nil
}

// ListByAccountID は指定アカウントの検索イベントを新しい順に返す。
// searched_atの降順、同時刻はidの降順で安定化し、limit件に切り詰める。
func (r *PostgresSearchEventRepo) ListByAccountID(ctx context.Context, accountID string, limit int) ([]*model.SearchEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, term, searched_at
		 FROM search_events
		 WHERE account_id = $1
		 ORDER BY searched_at DESC, id DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list search events: %w", err)
	}
	defer rows.Close()

	var events []*model.SearchEvent
	for rows.Next() {
		event := &model.SearchEvent{}
		if err := rows.Scan(&event.ID, &event.AccountID, &event.Term, &event.SearchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search events: %w", err)
	}

	return events, nil
}

// topTermsQuery のORDER BYは出現回数の降順、同数時は語の辞書順（昇順）。
// この順序がトレンドの決定論的な並びを保証する。
const topTermsQuery = `SELECT term, COUNT(*) AS cnt
	 FROM search_events
	 GROUP BY term
	 ORDER BY cnt DESC, term ASC
	 LIMIT $1`

// TopTerms は全イベントを語の完全一致でグループ化し、出現回数の降順で
// 上位k件を返す。同数の場合は語の辞書順（昇順）で決定論的に順序づける。
// 集計はアカウントをまたいだグローバルな頻度であり、ユーザースコープではない。
func (r *PostgresSearchEventRepo) TopTerms(ctx context.Context, k int) ([]*model.TrendingEntry, error) {
	rows, err := r.db.QueryContext(ctx, topTermsQuery, k)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top terms: %w", err)
	}
	defer rows.Close()

	var entries []*model.TrendingEntry
	for rows.Next() {
		entry := &model.TrendingEntry{}
		if err := rows.Scan(&entry.Term, &entry.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trending entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trending entries: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ SearchEventRepository = (*PostgresSearchEventRepo)(nil)
