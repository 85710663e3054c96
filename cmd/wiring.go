package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/agent"
	"github.com/signalnine/papertune/internal/arxiv"
	"github.com/signalnine/papertune/internal/config"
	"github.com/signalnine/papertune/internal/corpus"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/evaluation"
	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/llm"
	"github.com/signalnine/papertune/internal/optimize"
	"github.com/signalnine/papertune/internal/pricing"
	"github.com/signalnine/papertune/internal/prompt"
	"github.com/signalnine/papertune/internal/runner"
	"github.com/signalnine/papertune/internal/tool"
)

// arXiv asks API clients to wait three seconds between requests.
const arxivInterval = 3 * time.Second

// stack is the agent and everything it talks to, built from config.
type stack struct {
	client   llm.Client
	tools    *tool.Set
	executor *runner.Executor
	closers  []func() error
}

func (s *stack) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

func newLLM(cfg *config.Config) llm.Client {
	return llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  2,
	})
}

// newCorpusIndex returns the embedder and index for the configured backend.
func newCorpusIndex(ctx context.Context, cfg *config.Config) (corpus.Embedder, corpus.Index, func() error, error) {
	nop := func() error { return nil }
	if cfg.Corpus.Backend == "none" {
		return corpus.Disabled{}, corpus.Disabled{}, nop, nil
	}
	embedder := corpus.NewOpenAIEmbedder(corpus.OpenAIEmbedderOptions{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	switch cfg.Corpus.Backend {
	case "pgvector":
		idx, err := corpus.NewPGIndex(ctx, cfg.Corpus.DatabaseURL, cfg.Corpus.Table)
		if err != nil {
			return nil, nil, nil, err
		}
		return embedder, idx, idx.Close, nil
	default:
		idx, err := corpus.NewQdrantIndex(corpus.QdrantConfig{
			URL:        cfg.Corpus.QdrantURL,
			APIKey:     cfg.Corpus.QdrantAPIKey,
			Collection: cfg.Corpus.Collection,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return embedder, idx, idx.Close, nil
	}
}

func newTools(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*tool.Set, func() error, error) {
	embedder, idx, closeIdx, err := newCorpusIndex(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening corpus: %w", err)
	}
	tools := []tool.Tool{corpus.NewSearch(embedder, idx, corpus.Options{
		Limit:         cfg.Corpus.Limit,
		ChunkMaxChars: cfg.Corpus.ChunkMaxChars,
		Logger:        logger,
	})}
	if !cfg.LiveSearch.Disabled {
		client := arxiv.NewClient(arxiv.Options{
			BaseURL:     cfg.LiveSearch.BaseURL,
			Timeout:     cfg.LiveSearch.Timeout,
			Attempts:    cfg.LiveSearch.Retries,
			MinInterval: arxivInterval,
		})
		tools = append(tools, arxiv.NewTool(client, cfg.LiveSearch.MaxResults, cfg.LiveSearch.SummaryMaxChars, logger))
	}
	set, err := tool.NewSet(tools...)
	if err != nil {
		_ = closeIdx()
		return nil, nil, err
	}
	return set, closeIdx, nil
}

func newStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	prices, err := pricing.Load(cfg.Pricing.Path)
	if err != nil {
		return nil, err
	}
	tools, closeTools, err := newTools(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	client := newLLM(cfg)
	a := agent.New(client, agent.Options{
		MaxSteps:  cfg.Agent.MaxSteps,
		RawFormat: cfg.Agent.RawFormat,
		Logger:    logger,
	})
	exec := runner.NewExecutor(a, tools, runner.ExecutorOptions{
		Timeout:  cfg.Evaluation.Timeout,
		Model:    client.Model(),
		Provider: cfg.Pricing.Provider,
		Pricing:  prices,
		Logger:   logger,
	})
	return &stack{client: client, tools: tools, executor: exec, closers: []func() error{closeTools}}, nil
}

func newEvaluator(cfg *config.Config, data *dataset.Dataset, exec evaluation.Rollouts, runDir, runID string, logger *zap.Logger) *evaluation.Evaluator {
	return evaluation.New(data, exec, evaluation.Options{
		Workers:  cfg.Evaluation.Workers,
		MaxTasks: cfg.Evaluation.MaxTasks,
		RunDir:   runDir,
		RunID:    runID,
		Logger:   logger,
	})
}

// openHistory returns nil when history is disabled.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	return history.Open(ctx, cfg.History.Path)
}

func newProposer(cfg *config.Config, client llm.Client) (optimize.Proposer, error) {
	switch cfg.Optimize.Proposer {
	case "template":
		return optimize.TemplateProposer{}, nil
	case "files":
		if cfg.Optimize.VariantsDir == "" {
			return nil, fmt.Errorf("the files proposer needs --variants or optimize.variants_dir")
		}
		return optimize.NewFileProposer(cfg.Optimize.VariantsDir), nil
	case "llm":
		return optimize.NewLLMProposer(client), nil
	default:
		return nil, fmt.Errorf("unknown proposer %q (want template, files or llm)", cfg.Optimize.Proposer)
	}
}

func newMirror(ctx context.Context, cfg *config.Config) (optimize.Mirror, error) {
	if cfg.Optimize.S3Bucket == "" {
		return nil, nil
	}
	return prompt.NewS3Mirror(ctx, cfg.Optimize.S3Region, cfg.Optimize.S3Bucket, cfg.Optimize.S3Key)
}
