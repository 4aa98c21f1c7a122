package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/internal/tlsutil"
	"github.com/arvalo/arvalo/types"
	"go.uber.org/zap"
)

// Searcher 网络搜索后端
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchResult 单条搜索结果
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// HTTPSearcherConfig 搜索服务配置
type HTTPSearcherConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPSearcher 调用 JSON 搜索 API（Tavily 兼容的请求 / 响应格式）
type HTTPSearcher struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSearcher 创建搜索客户端
func NewHTTPSearcher(cfg HTTPSearcherConfig) *HTTPSearcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.tavily.com/search"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPSearcher{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key,omitempty"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements Searcher.
func (s *HTTPSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:      s.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.ClassifyHTTPStatus(resp.StatusCode, fmt.Sprintf("search API error: %s", truncate(string(raw), 200)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncate(r.Content, 500),
			Score:   r.Score,
		})
	}
	return out, nil
}

func webSearchTool(searcher Searcher, rateLimit float64, timeout time.Duration, logger *zap.Logger) agent.Tool {
	return agent.Tool{
		Name:        WebSearch,
		Description: "Search the web. Use it for merchant return policies, manufacturer warranty terms and current product prices. Returns titles, URLs and snippets.",
		InputSchema: types.NewObjectSchema().
			AddProperty("query", types.NewStringSchema("The search query")).
			AddProperty("max_results", types.NewIntegerSchema("Maximum number of results (default 5)")).
			AddRequired("query"),
		RateLimit: rateLimit,
		Timeout:   timeout,
		Execute: func(ctx context.Context, params map[string]any) (any, error) {
			args := struct {
				Query      string `json:"query"`
				MaxResults int    `json:"max_results"`
			}{MaxResults: 5}
			if err := decodeArgs(params, &args); err != nil {
				return nil, err
			}
			if args.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			if args.MaxResults <= 0 || args.MaxResults > 10 {
				args.MaxResults = 5
			}

			start := time.Now()
			results, err := searcher.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				logger.Warn("web search failed", zap.String("query", args.Query), zap.Error(err))
				return nil, fmt.Errorf("web search failed: %w", err)
			}
			logger.Debug("web search completed",
				zap.String("query", args.Query),
				zap.Int("results", len(results)),
				zap.Duration("duration", time.Since(start)),
			)
			return map[string]any{"query": args.Query, "results": results, "total_count": len(results)}, nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
