package enrichment

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/onnwee/reddit-scraper-fleet/internal/circuitbreaker"
	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
)

// Embedder produces one embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatCompleter produces a JSON-object completion for a prompt pair.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) ([]byte, error)
}

// azureProvider calls Azure OpenAI behind a circuit breaker; while the
// breaker is open, calls fail fast with ErrCircuitOpen.
type azureProvider struct {
	client  *openai.Client
	cfg     config.ProviderConfig
	breaker *circuitbreaker.CircuitBreaker
}

var (
	providerOnce sync.Once
	provider     *azureProvider
)

// getProvider lazily builds the Azure OpenAI client. Returns nil when the
// endpoint or key is missing; enrichment then runs disabled.
func getProvider(cfg config.ProviderConfig) *azureProvider {
	providerOnce.Do(func() {
		if cfg.Endpoint == "" || cfg.APIKey == "" {
			logger.WithComponent("enrichment").Warn("provider not configured, enrichment disabled")
			return
		}
		azCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		provider = &azureProvider{
			client:  openai.NewClientWithConfig(azCfg),
			cfg:     cfg,
			breaker: circuitbreaker.New(circuitbreaker.Config{Name: "azure_openai"}),
		}
	})
	return provider
}

func (p *azureProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := p.breaker.Call(func() error {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      openai.EmbeddingModel(p.cfg.EmbeddingDeployment),
			Input:      []string{text},
			Dimensions: p.cfg.EmbeddingDimensions,
		})
		if err != nil {
			return fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("embedding response empty")
		}
		out = resp.Data[0].Embedding
		return nil
	})
	return out, err
}

func (p *azureProvider) Complete(ctx context.Context, system, user string) ([]byte, error) {
	var out []byte
	err := p.breaker.Call(func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.cfg.ChatDeployment,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0.3,
			MaxTokens:   500,
		})
		if err != nil {
			return fmt.Errorf("create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("chat response empty")
		}
		out = []byte(resp.Choices[0].Message.Content)
		return nil
	})
	return out, err
}

// resetProviderForTest clears the provider singleton; for tests only.
func resetProviderForTest() {
	providerOnce = sync.Once{}
	provider = nil
}
