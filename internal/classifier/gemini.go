package classifier

import (
	"bytes"
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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements Client using the Gemini generateContent REST API.
type GeminiClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

// NewGeminiClient creates a client with optional proxy support.
func NewGeminiClient(apiKey, modelName, proxyURL string, timeout time.Duration) *GeminiClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiClient{
		BaseURL: defaultGeminiBaseURL,
		APIKey:  apiKey,
		Model:   modelName,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// ClassifyRaw sends one post to the model and parses its answer.
func (g *GeminiClient) ClassifyRaw(ctx context.Context, source model.Source, text string) (*Verdict, error) {
	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Parts: []geminiPart{{Text: BuildPrompt(source, text)}}}}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrTerminal, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.BaseURL, "/"), url.PathEscape(g.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformed, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		// A blocked prompt will be blocked again; treat it as no signal.
		return nil, nil
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformed)
	}
	var answer strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		answer.WriteString(p.Text)
	}
	return ParseVerdict(answer.String())
}

// Ping validates the API key by fetching the model description.
func (g *GeminiClient) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/%s", strings.TrimRight(g.BaseURL, "/"), url.PathEscape(g.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTerminal, err)
	}
	req.Header.Set("x-goog-api-key", g.APIKey)
	_, err = g.do(req)
	return err
}

// do executes req and maps HTTP failures onto the retry taxonomy.
func (g *GeminiClient) do(req *http.Request) ([]byte, error) {
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, truncate(string(body), 200))
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrTerminal, resp.StatusCode, truncate(string(body), 200))
	}
}
