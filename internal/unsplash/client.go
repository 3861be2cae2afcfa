// Package unsplash はUnsplash画像検索APIのクライアントを提供する。
package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// defaultEndpoint はUnsplash検索APIのエンドポイント。
	defaultEndpoint = "https://api.unsplash.com/search/photos"
	// resultsPerPage は1リクエストで取得する画像数。
	resultsPerPage = 30
)

// MetricsObserver は上流API呼び出しのメトリクス記録インターフェース。
type MetricsObserver interface {
	ObserveUpstreamRequest(duration time.Duration, outcome string)
}

// Image は検索結果の1画像。
// テキストフィールドはAPIレスポンスの値をサニタイズ済み。
type Image struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	URL            string `json:"url"`
	ThumbURL       string `json:"thumb_url"`
	Link           string `json:"link"`
	AuthorName     string `json:"author_name"`
	AuthorUsername string `json:"author_username"`
	AuthorLink     string `json:"author_link"`
	Likes          int    `json:"likes"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// SearchResult は画像検索の結果。
type SearchResult struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Images     []Image `json:"images"`
}

// searchResponse はUnsplash APIのレスポンス形状。
type searchResponse struct {
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		ID             string `json:"id"`
		Description    string `json:"description"`
		AltDescription string `json:"alt_description"`
		Likes          int    `json:"likes"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		URLs           struct {
			Regular string `json:"regular"`
			Thumb   string `json:"thumb"`
		} `json:"urls"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
		User struct {
			Name     string `json:"name"`
			Username string `json:"username"`
			Links    struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"user"`
	} `json:"results"`
}

// Client はUnsplash検索APIのクライアント。
// レスポンスのテキストフィールド（説明文、作者名）はAPI側の値を
// そのまま信用せず、HTMLタグを除去してから返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessKey  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
	sanitizer  *bluemonday.Policy
	metrics    MetricsObserver
}

// NewClient はClient の新しいインスタンスを生成する。metricsはnil可。
func NewClient(httpClient *http.Client, logger *slog.Logger, accessKey string, metrics MetricsObserver) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		accessKey:  accessKey,
		endpoint:   defaultEndpoint,
		sanitizer:  bluemonday.StrictPolicy(),
		metrics:    metrics,
	}
}

// SetEndpoint はAPIエンドポイントを差し替える（テスト用）。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// Search は指定語で画像を検索する。
// 1ページ目の最大30件を返す。語のバリデーションは呼び出し元の責務。
// 取得失敗時はエラーを返す（呼び出し元が上流エラーへの変換を判断する）。
func (c *Client) Search(ctx context.Context, term string) (*SearchResult, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("query", term)
	q.Set("page", "1")
	q.Set("per_page", strconv.Itoa(resultsPerPage))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", "v1")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, "network_error")
		c.logger.Error("Unsplash APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(start, "http_error")
		c.logger.Error("Unsplash APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("Unsplash APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(start, "read_error")
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.observe(start, "parse_error")
		c.logger.Error("Unsplash APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	c.observe(start, "success")

	result := &SearchResult{
		Total:      parsed.Total,
		TotalPages: parsed.TotalPages,
		Images:     make([]Image, 0, len(parsed.Results)),
	}
	for _, r := range parsed.Results {
		description := r.Description
		if description == "" {
			description = r.AltDescription
		}
		if description == "" {
			description = "No description"
		}
		result.Images = append(result.Images, Image{
			ID:             r.ID,
			Description:    c.sanitizer.Sanitize(description),
			URL:            r.URLs.Regular,
			ThumbURL:       r.URLs.Thumb,
			Link:           r.Links.HTML,
			AuthorName:     c.sanitizer.Sanitize(r.User.Name),
			AuthorUsername: r.User.Username,
			AuthorLink:     r.User.Links.HTML,
			Likes:          r.Likes,
			Width:          r.Width,
			Height:         r.Height,
		})
	}

	return result, nil
}

func (c *Client) observe(start time.Time, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveUpstreamRequest(time.Since(start), outcome)
	}
}
