package embed

import (
	"context"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const openaiModel = openai.SmallEmbedding3

// OpenAI produces embeddings through the OpenAI embeddings API,
// truncated server-side to Dim dimensions.
type OpenAI struct {
	client  *openai.Client
	retries int
}

// NewOpenAI builds an OpenAI embedder. baseURL is optional and lets the
// client target a compatible self-hosted endpoint.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		retries: 3,
	}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if blank(text) {
		return ZeroVector(), nil
	}

	var lastErr error
	for attempt := 0; attempt < o.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			log.Printf("embedding request failed, retrying in %s: %v", backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      openaiModel,
			Dimensions: Dim,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("embedding response contained no data")
			continue
		}
		vec := resp.Data[0].Embedding
		if len(vec) != Dim {
			return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), Dim)
		}
		return vec, nil
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", o.retries, lastErr)
}
