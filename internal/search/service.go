// Package search は画像検索の実行、検索履歴、トレンド集計を提供する。
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/picsearch/internal/model"
	"github.com/hitoshi/picsearch/internal/repository"
	"github.com/hitoshi/picsearch/internal/unsplash"
)

const (
	// trendingLimit はトレンド集計で返す検索語の上位件数。
	trendingLimit = 5
	// historyLimit は履歴取得で返す検索イベントの最大件数。
	historyLimit = 50
)

// ImageSearcher は画像カタログ検索のインターフェース。
type ImageSearcher interface {
	Search(ctx context.Context, term string) (*unsplash.SearchResult, error)
}

// MetricsRecorder は検索実行のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordSearch(outcome string)
}

// Service は検索に関するビジネスロジックを提供する。
type Service struct {
	searcher  ImageSearcher
	eventRepo repository.SearchEventRepository
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(searcher ImageSearcher, eventRepo repository.SearchEventRepository, metrics MetricsRecorder) *Service {
	return &Service{
		searcher:  searcher,
		eventRepo: eventRepo,
		metrics:   metrics,
	}
}

// Search は検索語を検証・記録してから画像カタログを検索する。
// 語は前後の空白をトリムし、空になった場合はInvalidTermを返す。
// 履歴の記録が先、カタログ検索が後。カタログ側の失敗時も記録は残る
// （ユーザーが何を検索しようとしたかの事実は上流の稼働状況に依存しない）。
func (s *Service) Search(ctx context.Context, accountID, rawTerm string) (*unsplash.SearchResult, error) {
	term, err := s.Record(ctx, accountID, rawTerm)
	if err != nil {
		return nil, err
	}

	result, err := s.searcher.Search(ctx, term)
	if err != nil {
		slog.Error("image catalog search failed",
			slog.String("term", term),
			slog.String("error", err.Error()),
		)
		s.recordSearch("upstream_error")
		return nil, model.NewUpstreamUnavailableError("unsplash")
	}

	s.recordSearch("success")
	return result, nil
}

// Record は検索イベントを検証して追記し、トリム済みの語を返す。
// 同一アカウントが同じ語を繰り返し検索した場合も毎回別イベントになる。
func (s *Service) Record(ctx context.Context, accountID, rawTerm string) (string, error) {
	term := strings.TrimSpace(rawTerm)
	if term == "" {
		s.recordSearch("invalid_term")
		return "", model.NewInvalidTermError()
	}

	event := &model.SearchEvent{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Term:       term,
		SearchedAt: time.Now(),
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.recordSearch("record_error")
		return "", fmt.Errorf("failed to record search event: %w", err)
	}

	return term, nil
}

// History は指定アカウントの検索イベントを新しい順に最大50件返す。
// 他アカウントのイベントは含まれない。
func (s *Service) History(ctx context.Context, accountID string) ([]*model.SearchEvent, error) {
	events, err := s.eventRepo.ListByAccountID(ctx, accountID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	return events, nil
}

// Trending は全アカウントの検索イベントを語の完全一致で集計し、
// 出現回数の上位5件を返す。同数の場合は語の辞書順で安定化する。
// イベントが1件もない場合は空スライスを返す。
func (s *Service) Trending(ctx context.Context) ([]*model.TrendingEntry, error) {
	entries, err := s.eventRepo.TopTerms(ctx, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trending terms: %w", err)
	}
	return entries, nil
}

func (s *Service) recordSearch(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSearch(outcome)
	}
}
