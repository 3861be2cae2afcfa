package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/picsearch/internal/middleware"
	"github.com/hitoshi/picsearch/internal/model"
	"github.com/hitoshi/picsearch/internal/unsplash"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, accountID, rawTerm string) (*unsplash.SearchResult, error)
	History(ctx context.Context, accountID string) ([]*model.SearchEvent, error)
	Trending(ctx context.Context) ([]*model.TrendingEntry, error)
}

// SearchHandler は画像検索・履歴・トレンドのHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

// searchRequest は画像検索リクエストのボディ。
type searchRequest struct {
	Term string `json:"term"`
}

// historyEntryResponse は検索履歴の1エントリ。
type historyEntryResponse struct {
	Term      string    `json:"term"`
	Timestamp time.Time `json:"timestamp"`
}

// trendingEntryResponse はトレンドの1エントリ。
type trendingEntryResponse struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Search は検索語を記録し、画像カタログを検索して結果を返す。
// POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTermError())
		return
	}

	// 記録される検索語とレスポンスのエコーを一致させるため、前後の空白を除去する
	term := strings.TrimSpace(req.Term)

	result, err := h.service.Search(r.Context(), accountID, term)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"term":    term,
		"total":   result.Total,
		"results": len(result.Images),
		"images":  result.Images,
	})
}

// History は自分の検索履歴を新しい順に返す。
// GET /history
func (h *SearchHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	events, err := h.service.History(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	history := make([]historyEntryResponse, 0, len(events))
	for _, e := range events {
		history = append(history, historyEntryResponse{
			Term:      e.Term,
			Timestamp: e.SearchedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"history": history,
	})
}

// Trending は全アカウントの検索語トップ5を返す。
// GET /top-searches
// 認証不要の公開エンドポイント。
func (h *SearchHandler) Trending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Trending(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	top := make([]trendingEntryResponse, 0, len(entries))
	for _, e := range entries {
		top = append(top, trendingEntryResponse{
			Term:  e.Term,
			Count: e.Count,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"topSearches": top,
	})
}
