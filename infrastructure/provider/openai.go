package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/internal/config"
)

// errEmbeddingCountMismatch indicates the API returned fewer vectors than
// requested. Transient upstream issues can produce partial responses
// behind a 200 status, so this is retryable.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

const parserSystemPrompt = `Ты извлекаешь структуру из названий строительных материалов.
Ответь строго JSON-объектом {"unit": string, "coefficient": number, "color": string}.
unit — единица измерения из текста (например "кг", "м3", "шт"), coefficient —
множитель к базовой единице (1 если не указан), color — цвет если он явно
назван, иначе пустая строка. Никогда не угадывай цвет.`

// OpenAIProvider implements Embedder and MaterialParser over the OpenAI API.
type OpenAIProvider struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
	dimension      int
	maxRetries     int
	initialDelay   time.Duration
	backoffFactor  float64
}

// OpenAIOption is a functional option for OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.embeddingModel = model }
}

// WithChatModel sets the chat model used for parsing.
func WithChatModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.chatModel = model }
}

// WithDimension sets the expected embedding dimension.
func WithDimension(d int) OpenAIOption {
	return func(p *OpenAIProvider) { p.dimension = d }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) OpenAIOption {
	return func(p *OpenAIProvider) { p.maxRetries = n }
}

// WithInitialDelay sets the first retry delay.
func WithInitialDelay(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) { p.initialDelay = d }
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg config.ProviderConfig, opts ...OpenAIOption) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey())
	if cfg.BaseURL() != "" {
		clientCfg.BaseURL = cfg.BaseURL()
	}
	if cfg.Timeout() > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout()}
	}

	p := &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: cfg.EmbeddingModel(),
		chatModel:      cfg.ChatModel(),
		dimension:      cfg.Dimension(),
		maxRetries:     cfg.MaxRetries(),
		initialDelay:   2 * time.Second,
		backoffFactor:  2.0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dimension returns the fixed vector dimension.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed generates embeddings for the given texts in a single API call.
// Every returned vector is checked against the configured dimension; a
// mismatch is an EmbeddingShape fault and is never retried.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := p.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateEmbeddings(ctx, req)
		if callErr != nil {
			return callErr
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, p.embeddingFault(err)
	}

	vectors := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != p.dimension {
			return nil, fault.New(fault.EmbeddingShape,
				fmt.Sprintf("embedding dimension %d, expected %d", len(data.Embedding), p.dimension))
		}
		vectors[i] = make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vectors[i][j] = float64(v)
		}
	}
	return vectors, nil
}

// EmbedOne returns the vector for a single text.
func (p *OpenAIProvider) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ParseMaterial extracts unit, coefficient, and color via a chat
// completion with a JSON response format.
func (p *OpenAIProvider) ParseMaterial(ctx context.Context, name, description string) (ParseResult, error) {
	input := name
	if description != "" {
		input += "\n" + description
	}

	req := openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: parserSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	}

	var resp openai.ChatCompletionResponse
	err := p.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return ParseResult{}, p.wrapError("parse_material", err)
	}
	if len(resp.Choices) == 0 {
		return ParseResult{}, NewProviderError("parse_material", 0, "no choices in response", false, nil)
	}

	var parsed struct {
		Unit        string  `json:"unit"`
		Coefficient float64 `json:"coefficient"`
		Color       string  `json:"color"`
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ParseResult{}, NewProviderError("parse_material", 0,
			fmt.Sprintf("malformed parser output: %v", err), false, err)
	}
	if parsed.Coefficient <= 0 {
		parsed.Coefficient = 1
	}

	return ParseResult{
		Unit:        strings.TrimSpace(parsed.Unit),
		Coefficient: parsed.Coefficient,
		Color:       strings.TrimSpace(parsed.Color),
	}, nil
}

// withRetry executes fn with exponential backoff.
func (p *OpenAIProvider) withRetry(ctx context.Context, fn func() error) error {
	delay := p.initialDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// embeddingFault translates an exhausted embedding call into the taxonomy:
// context errors pass through, everything else becomes EmbeddingUnavailable.
func (p *OpenAIProvider) embeddingFault(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fault.Wrap(fault.EmbeddingUnavailable, "embedding provider exhausted retries", err)
}

// wrapError wraps an OpenAI error into a ProviderError.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, isRetryable(err), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), true, err)
	}
	return NewProviderError(operation, 0, err.Error(), false, err)
}

var (
	_ Embedder       = (*OpenAIProvider)(nil)
	_ MaterialParser = (*OpenAIProvider)(nil)
)
