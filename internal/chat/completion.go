package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	maxResponseBytes   = 4 << 20
	errorBodyLogLimit  = 300
	completionEndpoint = "/chat/completions"
)

// Citation is a source reference returned inline by the completion service.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
	Domain  string `json:"domain"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionResult struct {
	Text      string
	Model     string
	Citations []Citation
	Usage     TokenUsage
}

// Completer sends one completion request. Implementations must return an
// *UpstreamError for every failure involving the remote service.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, turns []Turn) (CompletionResult, error)
}

// CompletionConfig is everything the HTTP completion client needs. It is
// built by the caller; the client never reads the environment.
type CompletionConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	TopP           float64
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// HTTPCompletionClient talks to an OpenAI-compatible chat completions
// endpoint.
type HTTPCompletionClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	httpClient  *http.Client
}

func NewHTTPCompletionClient(cfg CompletionConfig) *HTTPCompletionClient {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: requestTimeout,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPCompletionClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionPayload struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type wireCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
	Domain  string `json:"domain"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
			Context *struct {
				Citations []wireCitation `json:"citations"`
			} `json:"context"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *HTTPCompletionClient) Complete(ctx context.Context, systemPrompt string, turns []Turn) (CompletionResult, error) {
	switch {
	case c.apiKey == "":
		return CompletionResult{}, &ConfigError{Setting: "LLM_API_KEY"}
	case c.baseURL == "":
		return CompletionResult{}, &ConfigError{Setting: "LLM_BASE_URL"}
	case c.model == "":
		return CompletionResult{}, &ConfigError{Setting: "LLM_MODEL"}
	}

	messages := make([]wireMessage, 0, len(turns)+1)
	messages = append(messages, wireMessage{Role: "system", Content: systemPrompt})
	for _, turn := range turns {
		messages = append(messages, wireMessage{Role: turn.Role.String(), Content: turn.Content})
	}
	body, err := json.Marshal(completionPayload{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("marshaling completion request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionEndpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("creating completion request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return CompletionResult{}, transportError(err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return CompletionResult{}, transportError(err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return CompletionResult{}, statusError(response.StatusCode, raw)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompletionResult{}, &UpstreamError{
			Kind:       KindDecode,
			StatusCode: response.StatusCode,
			Message:    "undecodable response body",
			Err:        err,
		}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil ||
		strings.TrimSpace(*parsed.Choices[0].Message.Content) == "" {
		return CompletionResult{}, &UpstreamError{
			Kind:       KindEmptyResponse,
			StatusCode: response.StatusCode,
			Message:    "response contained no message content",
		}
	}

	message := parsed.Choices[0].Message
	result := CompletionResult{
		Text:      strings.TrimSpace(*message.Content),
		Model:     strings.TrimSpace(parsed.Model),
		Citations: []Citation{},
	}
	if result.Model == "" {
		result.Model = c.model
	}
	if message.Context != nil {
		for _, wc := range message.Context.Citations {
			result.Citations = append(result.Citations, toCitation(wc))
		}
	}
	if len(result.Citations) == 0 {
		for _, link := range parsed.Citations {
			if strings.TrimSpace(link) == "" {
				continue
			}
			result.Citations = append(result.Citations, toCitation(wireCitation{URL: link}))
		}
	}
	if parsed.Usage != nil {
		result.Usage = TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return result, nil
}

func toCitation(wc wireCitation) Citation {
	citation := Citation{
		Title:   strings.TrimSpace(wc.Title),
		URL:     strings.TrimSpace(wc.URL),
		Excerpt: strings.TrimSpace(wc.Excerpt),
		Domain:  strings.TrimSpace(wc.Domain),
	}
	if citation.Excerpt == "" {
		citation.Excerpt = strings.TrimSpace(wc.Content)
	}
	if citation.Domain == "" && citation.URL != "" {
		if parsed, err := url.Parse(citation.URL); err == nil {
			citation.Domain = strings.TrimPrefix(parsed.Hostname(), "www.")
		}
	}
	if citation.Title == "" {
		citation.Title = citation.Domain
	}
	return citation
}

// transportError maps a failed round trip onto an ErrorKind.
func transportError(err error) *UpstreamError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &UpstreamError{Kind: KindNetwork, Message: "could not resolve host " + dnsErr.Name, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return &UpstreamError{Kind: KindNetwork, Message: "connection refused or host unreachable", Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &UpstreamError{Kind: KindNetwork, Message: "could not connect", Err: err}
	}
	return &UpstreamError{Kind: KindTransport, Err: err}
}

func statusError(status int, body []byte) *UpstreamError {
	detail := upstreamErrorDetail(body)
	kind := KindHTTPStatus
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthentication
	case status == http.StatusNotFound:
		kind = KindModelConfiguration
	case status == http.StatusBadRequest && mentionsUnknownModel(detail):
		kind = KindModelConfiguration
	}
	return &UpstreamError{Kind: kind, StatusCode: status, Message: detail}
}

func upstreamErrorDetail(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
			return strings.TrimSpace(flat)
		}
	}
	return truncateForLog(string(body), errorBodyLogLimit)
}

func mentionsUnknownModel(detail string) bool {
	lowered := strings.ToLower(detail)
	if !strings.Contains(lowered, "model") {
		return false
	}
	for _, marker := range []string{"not found", "does not exist", "invalid model", "unknown model", "model_not_found", "not supported"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "...(truncated)"
}
