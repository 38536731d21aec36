package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/biodoia/goleapchain/internal/providers"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrModelNotFound      = errors.New("model not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrEmptyResponse      = errors.New("empty response")
)

const (
	chatCompletionsPath = "/v1/chat/completions"

	// Alcuni gateway compatibili rispondono senza Content-Type: il body
	// viene comunque decodificato come JSON.
	jsonContentType = "application/json"
)

// Client implementa un client OpenAI-compatible
type Client struct {
	*providers.BaseProvider
	httpClient   *resty.Client
	retryWait    time.Duration
	retryMaxWait time.Duration
}

// Option configura il client
type Option func(*Client)

// WithTimeout imposta il timeout delle richieste HTTP
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.SetTimeout(timeout)
		}
	}
}

// WithMaxRetries imposta il numero di retry su errori transitori
func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.SetMaxRetries(retries)
		}
	}
}

// WithRetryWait imposta l'attesa minima e massima tra i retry
func WithRetryWait(wait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retryWait = wait
		c.retryMaxWait = maxWait
	}
}

// NewClient crea un nuovo client OpenAI
func NewClient(name, baseURL, apiKey string, opts ...Option) *Client {
	base := providers.NewBaseProvider(name, strings.TrimRight(baseURL, "/"), apiKey)

	base.SetFeature(providers.FeatureStreaming, true)
	base.SetFeature(providers.FeatureTools, true)
	base.SetFeature(providers.FeatureJSONMode, true)

	client := &Client{
		BaseProvider: base,
		httpClient:   resty.New(),
		retryWait:    1 * time.Second,
		retryMaxWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}

	client.configureHTTPClient()
	return client
}

// configureHTTPClient configura il client HTTP con retry e timeout
func (c *Client) configureHTTPClient() {
	c.httpClient.
		SetBaseURL(c.GetBaseURL()).
		SetTimeout(c.GetTimeout()).
		SetRetryCount(c.GetMaxRetries()).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(c.retryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return err != nil && !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() >= 500 ||
				r.StatusCode() == http.StatusTooManyRequests ||
				r.StatusCode() == http.StatusRequestTimeout
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if c.GetAPIKey() != "" {
		c.httpClient.SetAuthToken(c.GetAPIKey())
	}

	c.httpClient.OnBeforeRequest(func(client *resty.Client, req *resty.Request) error {
		log.Debug().
			Str("provider", c.Name()).
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("OpenAI API request")
		return nil
	})

	c.httpClient.OnAfterResponse(func(client *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("provider", c.Name()).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("OpenAI API response")
		return nil
	})
}

// ChatCompletion esegue una richiesta di chat completion
func (c *Client) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	openaiReq := c.convertToOpenAIRequest(req)
	openaiReq.Stream = false

	var openaiResp ChatCompletionResponse
	var errResp ErrorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(openaiReq).
		ExpectContentType(jsonContentType).
		SetResult(&openaiResp).
		SetError(&errResp).
		Post(chatCompletionsPath)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		return nil, c.handleErrorResponse(resp.StatusCode(), &errResp)
	}

	if len(openaiResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return c.convertFromOpenAIResponse(&openaiResp), nil
}

// Stream esegue una richiesta di chat completion con streaming
func (c *Client) Stream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	openaiReq := c.convertToOpenAIRequest(req)
	openaiReq.Stream = true
	openaiReq.StreamOptions = &StreamOptions{IncludeUsage: true}

	httpReq, err := c.createStreamRequest(ctx, openaiReq)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Lo stream usa il client HTTP sottostante: i retry di resty non
	// si applicano a un body già consumato parzialmente.
	httpResp, err := c.httpClient.GetClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return c.handleStreamError(httpResp)
	}

	return c.processStream(httpResp.Body, handler)
}

// createStreamRequest crea una richiesta HTTP per lo streaming
func (c *Client) createStreamRequest(ctx context.Context, req *ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GetBaseURL()+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	if c.GetAPIKey() != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.GetAPIKey())
	}

	return httpReq, nil
}

// processStream processa lo stream SSE
func (c *Client) processStream(body io.Reader, handler providers.StreamHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	toolCallsBuilder := make(map[int]*ToolCall)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return handler(&providers.StreamChunk{
				Done:      true,
				ToolCalls: collectToolCalls(toolCallsBuilder),
			})
		}

		var streamResp ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			log.Warn().Err(err).Str("data", data).Msg("Failed to parse stream chunk")
			continue
		}

		chunk := convertStreamChunk(&streamResp, toolCallsBuilder)
		if err := handler(chunk); err != nil {
			return fmt.Errorf("handler error: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}

	return nil
}

// convertStreamChunk converte un chunk OpenAI in formato generico
func convertStreamChunk(resp *ChatCompletionStreamResponse, toolCallsBuilder map[int]*ToolCall) *providers.StreamChunk {
	chunk := &providers.StreamChunk{}

	if resp.Usage != nil {
		chunk.Usage = &providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return chunk
	}

	choice := resp.Choices[0]
	delta := choice.Delta
	chunk.FinishReason = choice.FinishReason

	if content, ok := delta.Content.(string); ok {
		chunk.Delta = content
	}

	for _, tc := range delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}

		existing, ok := toolCallsBuilder[index]
		if !ok {
			toolCallsBuilder[index] = &ToolCall{
				ID:       tc.ID,
				Type:     tc.Type,
				Function: tc.Function,
			}
			continue
		}
		if tc.ID != "" {
			existing.ID = tc.ID
		}
		existing.Function.Name += tc.Function.Name
		existing.Function.Arguments += tc.Function.Arguments
	}

	if len(toolCallsBuilder) > 0 {
		chunk.ToolCalls = collectToolCalls(toolCallsBuilder)
	}

	return chunk
}

// collectToolCalls restituisce le tool call accumulate ordinate per indice
func collectToolCalls(builder map[int]*ToolCall) []providers.ToolCall {
	if len(builder) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(builder))
	for idx := range builder {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]providers.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		tc := builder[idx]
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		calls = append(calls, providers.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return calls
}

// HealthCheck verifica lo stato del provider
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.listModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// GetModels restituisce la lista dei modelli disponibili
func (c *Client) GetModels(ctx context.Context) ([]providers.ModelInfo, error) {
	result, err := c.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get models: %w", err)
	}

	models := make([]providers.ModelInfo, len(result.Data))
	for i, model := range result.Data {
		models[i] = providers.ModelInfo{
			ID:       model.ID,
			Provider: c.Name(),
			OwnedBy:  model.OwnedBy,
		}
	}
	return models, nil
}

func (c *Client) listModels(ctx context.Context) (*ModelsResponse, error) {
	var result ModelsResponse
	var errResp ErrorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		ExpectContentType(jsonContentType).
		SetResult(&result).
		SetError(&errResp).
		Get("/v1/models")

	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.handleErrorResponse(resp.StatusCode(), &errResp)
	}
	return &result, nil
}

// convertToOpenAIRequest converte una richiesta generica in formato OpenAI
func (c *Client) convertToOpenAIRequest(req *providers.ChatRequest) *ChatCompletionRequest {
	openaiReq := &ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
		Stop:        req.Stop,
		Seed:        req.Seed,
	}

	openaiReq.Messages = make([]ChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		openaiReq.Messages[i] = ChatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}

		if len(msg.ToolCalls) > 0 {
			openaiReq.Messages[i].ToolCalls = make([]ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				openaiReq.Messages[i].ToolCalls[j] = ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}
	}

	if len(req.Tools) > 0 {
		openaiReq.Tools = make([]Tool, len(req.Tools))
		for i, tool := range req.Tools {
			openaiReq.Tools[i] = Tool{
				Type: tool.Type,
				Function: Function{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		openaiReq.ToolChoice = req.ToolChoice
	}

	if req.ResponseFormat != nil {
		openaiReq.ResponseFormat = &ResponseFormat{Type: req.ResponseFormat.Type}
	}

	return openaiReq
}

// convertFromOpenAIResponse converte una risposta OpenAI in formato generico
func (c *Client) convertFromOpenAIResponse(resp *ChatCompletionResponse) *providers.ChatResponse {
	choices := make([]providers.Choice, len(resp.Choices))
	for i, choice := range resp.Choices {
		msg := providers.Message{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
			Name:    choice.Message.Name,
		}

		if len(choice.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]providers.ToolCall, len(choice.Message.ToolCalls))
			for j, tc := range choice.Message.ToolCalls {
				msg.ToolCalls[j] = providers.ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: providers.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: choice.FinishReason,
		}
	}

	return &providers.ChatResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// handleErrorResponse gestisce gli errori dalla risposta API
func (c *Client) handleErrorResponse(statusCode int, errResp *ErrorResponse) error {
	var baseErr error
	if errResp == nil || errResp.Error.Message == "" {
		baseErr = fmt.Errorf("API error: status %d", statusCode)
	} else {
		baseErr = fmt.Errorf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrInvalidAPIKey, baseErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimitExceeded, baseErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrModelNotFound, baseErr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, baseErr)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, baseErr)
	default:
		return baseErr
	}
}

// handleStreamError gestisce gli errori nello streaming
func (c *Client) handleStreamError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.handleErrorResponse(resp.StatusCode, nil)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("stream error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return c.handleErrorResponse(resp.StatusCode, &errResp)
}
