package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TradeSentinel/internal/model"
)

// HTTPFetcher implements Fetcher against a JSON post feed at {BaseURL}/{source}.
type HTTPFetcher struct {
	BaseURL  string
	APIKey   string
	MaxPosts int
	Client   *http.Client
}

// NewHTTPFetcher creates a new fetcher with optional proxy support.
func NewHTTPFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *HTTPFetcher) Name() string { return "http" }

// feedPost is one entry of the feed. Both "text" and "content" are accepted.
type feedPost struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, source model.Source) ([]model.RawItem, error) {
	endpoint := fmt.Sprintf("%s/%s", f.BaseURL, url.PathEscape(string(source)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &FetchError{Source: source, NotFound: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("status %d, body: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	posts, err := decodeFeed(body)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	items := make([]model.RawItem, 0, len(posts))
	for _, p := range posts {
		text := p.Text
		if text == "" {
			text = p.Content
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		items = append(items, model.RawItem{Source: source, Text: text})
		if f.MaxPosts > 0 && len(items) >= f.MaxPosts {
			break
		}
	}
	return items, nil
}

// decodeFeed accepts either a bare array of posts or {"posts": [...]}.
func decodeFeed(body []byte) ([]feedPost, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var posts []feedPost
		if err := json.Unmarshal(body, &posts); err != nil {
			return nil, fmt.Errorf("decode posts: %w", err)
		}
		return posts, nil
	}
	var wrapped struct {
		Posts []feedPost `json:"posts"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return wrapped.Posts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
