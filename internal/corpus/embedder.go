package corpus

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/singleflight"
)

type OpenAIEmbedderOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder embeds queries with the OpenAI embeddings API. Concurrent
// requests for the same text share one API call.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	group      singleflight.Group
}

func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) *OpenAIEmbedder {
	var ro []option.RequestOption
	if opts.APIKey != "" {
		ro = append(ro, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(ro...),
		model:      opts.Model,
		dimensions: opts.Dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := e.group.Do(text, func() (any, error) {
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimensions > 0 {
			params.Dimensions = openai.Int(int64(e.dimensions))
		}
		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("embeddings: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("embeddings: empty response")
		}
		src := resp.Data[0].Embedding
		vec := make([]float32, len(src))
		for i, f := range src {
			vec[i] = float32(f)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
