package unsplash

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	c := NewClient(http.DefaultClient, logger, "test-access-key", nil)
	if c == nil {
		t.Fatal("NewClient は nil を返してはならない")
	}
}

func TestClient_Search_SendsExpectedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Client-ID test-access-key" {
			t.Errorf("Authorization = %q, want Client-ID test-access-key", got)
		}

		q := r.URL.Query()
		if q.Get("query") != "mountain" {
			t.Errorf("query = %q, want mountain", q.Get("query"))
		}
		if q.Get("page") != "1" {
			t.Errorf("page = %q, want 1", q.Get("page"))
		}
		if q.Get("per_page") != "30" {
			t.Errorf("per_page = %q, want 30", q.Get("per_page"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":       1,
			"total_pages": 1,
			"results": []map[string]interface{}{
				{
					"id":          "img-1",
					"description": "A snowy mountain",
					"likes":       12,
					"width":       4000,
					"height":      3000,
					"urls": map[string]string{
						"regular": "https://images.unsplash.com/img-1?w=1080",
						"thumb":   "https://images.unsplash.com/img-1?w=200",
					},
					"links": map[string]string{
						"html": "https://unsplash.com/photos/img-1",
					},
					"user": map[string]interface{}{
						"name":     "Jiro Tanaka",
						"username": "jiro",
						"links": map[string]string{
							"html": "https://unsplash.com/@jiro",
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "test-access-key", nil)
	c.SetEndpoint(server.URL)

	result, err := c.Search(context.Background(), "mountain")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}

	if result.Total != 1 {
		t.Errorf("Total = %d, want 1", result.Total)
	}
	if len(result.Images) != 1 {
		t.Fatalf("画像数 = %d, want 1", len(result.Images))
	}

	img := result.Images[0]
	if img.ID != "img-1" {
		t.Errorf("ID = %q, want img-1", img.ID)
	}
	if img.Description != "A snowy mountain" {
		t.Errorf("Description = %q", img.Description)
	}
	if img.URL != "https://images.unsplash.com/img-1?w=1080" {
		t.Errorf("URL = %q", img.URL)
	}
	if img.AuthorName != "Jiro Tanaka" {
		t.Errorf("AuthorName = %q", img.AuthorName)
	}
}

func TestClient_Search_FallsBackToAltDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":       1,
			"total_pages": 1,
			"results": []map[string]interface{}{
				{
					"id":              "img-2",
					"description":     "",
					"alt_description": "a cat sitting on a windowsill",
				},
			},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
	c.SetEndpoint(server.URL)

	result, err := c.Search(context.Background(), "cat")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}
	if result.Images[0].Description != "a cat sitting on a windowsill" {
		t.Errorf("Description = %q, want alt_description fallback", result.Images[0].Description)
	}
}

// description・alt_descriptionが両方空（またはnull）の場合の最終フォールバック
func TestClient_Search_BothDescriptionsEmpty_UsesPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":       1,
			"total_pages": 1,
			"results": []map[string]interface{}{
				{
					"id":              "img-3",
					"description":     nil,
					"alt_description": nil,
				},
			},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
	c.SetEndpoint(server.URL)

	result, err := c.Search(context.Background(), "cat")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}
	if result.Images[0].Description != "No description" {
		t.Errorf("Description = %q, want %q", result.Images[0].Description, "No description")
	}
}

// 説明文・作者名に含まれるHTMLタグは除去されることを検証
func TestClient_Search_SanitizesTextFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":       1,
			"total_pages": 1,
			"results": []map[string]interface{}{
				{
					"id":          "img-3",
					"description": `<script>alert("xss")</script>sunset`,
					"user": map[string]interface{}{
						"name":     `<img src=x onerror=alert(1)>Evil`,
						"username": "evil",
					},
				},
			},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
	c.SetEndpoint(server.URL)

	result, err := c.Search(context.Background(), "sunset")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}

	img := result.Images[0]
	if img.Description != "sunset" {
		t.Errorf("Description = %q, scriptタグが除去されていない", img.Description)
	}
	if img.AuthorName != "Evil" {
		t.Errorf("AuthorName = %q, imgタグが除去されていない", img.AuthorName)
	}
}

func TestClient_Search_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"401 Unauthorized", http.StatusUnauthorized},
		{"403 Rate Limited", http.StatusForbidden},
		{"500 Internal Server Error", http.StatusInternalServerError},
		{"503 Service Unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			var buf bytes.Buffer
			c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
			c.SetEndpoint(server.URL)

			_, err := c.Search(context.Background(), "term")
			if err == nil {
				t.Fatal("エラーステータスに対してerrorを返すべき")
			}
		})
	}
}

func TestClient_Search_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("not valid json"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
	c.SetEndpoint(server.URL)

	_, err := c.Search(context.Background(), "term")
	if err == nil {
		t.Fatal("不正なJSONに対してerrorを返すべき")
	}
}

func TestClient_Search_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":       0,
			"total_pages": 0,
			"results":     []interface{}{},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "key", nil)
	c.SetEndpoint(server.URL)

	result, err := c.Search(context.Background(), "zzzzzzz")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}
	if len(result.Images) != 0 {
		t.Errorf("画像数 = %d, want 0", len(result.Images))
	}
}
