package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM        LLM        `yaml:"llm"`
	Embedding  Embedding  `yaml:"embedding"`
	Corpus     Corpus     `yaml:"corpus"`
	LiveSearch LiveSearch `yaml:"live_search"`
	Agent      Agent      `yaml:"agent"`
	Dataset    Dataset    `yaml:"dataset"`
	Evaluation Evaluation `yaml:"evaluation"`
	Optimize   Optimize   `yaml:"optimize"`
	Results    Results    `yaml:"results"`
	History    History    `yaml:"history"`
	Pricing    Pricing    `yaml:"pricing"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Log        Log        `yaml:"log"`
	Secrets    Secrets    `yaml:"secrets"`
}

type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"-"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
}

type Embedding struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

type Corpus struct {
	Backend       string `yaml:"backend"`
	QdrantURL     string `yaml:"qdrant_url"`
	QdrantAPIKey  string `yaml:"-"`
	Collection    string `yaml:"collection"`
	DatabaseURL   string `yaml:"database_url"`
	Table         string `yaml:"table"`
	Limit         int    `yaml:"limit"`
	ChunkMaxChars int    `yaml:"chunk_max_chars"`
}

type LiveSearch struct {
	Disabled        bool          `yaml:"disabled"`
	BaseURL         string        `yaml:"base_url"`
	MaxResults      int           `yaml:"max_results"`
	SummaryMaxChars int           `yaml:"summary_max_chars"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
}

type Agent struct {
	MaxSteps  int  `yaml:"max_steps"`
	RawFormat bool `yaml:"raw_format"`
}

type Dataset struct {
	Paths []string `yaml:"paths"`
}

type Evaluation struct {
	Workers  int           `yaml:"workers"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxTasks int           `yaml:"max_tasks"`
}

type Optimize struct {
	Iterations      int    `yaml:"iterations"`
	Candidates      int    `yaml:"candidates"`
	Patience        int    `yaml:"patience"`
	UseValidation   bool   `yaml:"use_validation"`
	ValidationEvery int    `yaml:"validation_every"`
	Proposer        string `yaml:"proposer"`
	VariantsDir     string `yaml:"variants_dir"`
	Output          string `yaml:"output"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Key           string `yaml:"s3_key"`
	S3Region        string `yaml:"s3_region"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type History struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

type Pricing struct {
	Path     string `yaml:"path"`
	Provider string `yaml:"provider"`
}

type Telemetry struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

var (
	corpusBackends = []string{"qdrant", "pgvector", "none"}
	proposers      = []string{"template", "files", "llm"}
)

// Default returns a config with every default applied and the environment
// overlaid, for runs without a config file.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := finish(cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Secrets.EnvFile != "" && !filepath.IsAbs(cfg.Secrets.EnvFile) {
		cfg.Secrets.EnvFile = filepath.Join(filepath.Dir(path), cfg.Secrets.EnvFile)
	}
	if err := finish(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func finish(cfg *Config) error {
	if cfg.Secrets.EnvFile == "" {
		cfg.Secrets.EnvFile = ".env"
	}
	if err := loadEnvFile(cfg.Secrets.EnvFile); err != nil {
		return err
	}
	applyEnv(cfg, os.LookupEnv)
	return validate(cfg)
}

// loadEnvFile populates unset environment variables from a dotenv file. A
// missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	str(&cfg.LLM.Model, "OPENAI_MODEL")
	str(&cfg.Corpus.QdrantURL, "QDRANT_URL")
	str(&cfg.Corpus.QdrantAPIKey, "QDRANT_API_KEY")
	str(&cfg.Corpus.Collection, "QDRANT_COLLECTION")
	str(&cfg.Corpus.DatabaseURL, "DATABASE_URL")
	str(&cfg.Optimize.Output, "PAPERTUNE_PROMPT_PATH", "APO_OPTIMIZED_PROMPT_PATH")
	str(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	str(&cfg.Log.Level, "PAPERTUNE_LOG_LEVEL")

	keyEnv := cfg.LLM.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	str(&cfg.LLM.APIKey, keyEnv)

	if v, ok := lookup("PAPERTUNE_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.Workers = n
		}
	}
}

func validate(cfg *Config) error {
	var errs *multierror.Error

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = multierror.Append(errs, fmt.Errorf("llm.temperature must be in [0,2], got %v", cfg.LLM.Temperature))
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}

	if cfg.Corpus.Backend == "" {
		cfg.Corpus.Backend = "qdrant"
	}
	cfg.Corpus.Backend = strings.ToLower(cfg.Corpus.Backend)
	if !slices.Contains(corpusBackends, cfg.Corpus.Backend) {
		errs = multierror.Append(errs, fmt.Errorf("corpus.backend %q: want one of %v", cfg.Corpus.Backend, corpusBackends))
	}
	if cfg.Corpus.QdrantURL == "" {
		cfg.Corpus.QdrantURL = "http://localhost:6334"
	}
	if cfg.Corpus.Collection == "" {
		cfg.Corpus.Collection = "arxiv_papers"
	}
	if cfg.Corpus.Table == "" {
		cfg.Corpus.Table = "paper_chunks"
	}
	if cfg.Corpus.Backend == "pgvector" && cfg.Corpus.DatabaseURL == "" {
		errs = multierror.Append(errs, fmt.Errorf("corpus.database_url is required for the pgvector backend"))
	}
	if cfg.Corpus.Limit == 0 {
		cfg.Corpus.Limit = 4
	}
	if cfg.Corpus.ChunkMaxChars == 0 {
		cfg.Corpus.ChunkMaxChars = 1000
	}
	if cfg.Corpus.Limit < 0 || cfg.Corpus.ChunkMaxChars < 0 {
		errs = multierror.Append(errs, fmt.Errorf("corpus.limit and corpus.chunk_max_chars must be positive"))
	}

	if cfg.LiveSearch.BaseURL == "" {
		cfg.LiveSearch.BaseURL = "https://export.arxiv.org/api/query"
	}
	if cfg.LiveSearch.MaxResults == 0 {
		cfg.LiveSearch.MaxResults = 5
	}
	if cfg.LiveSearch.SummaryMaxChars == 0 {
		cfg.LiveSearch.SummaryMaxChars = 400
	}
	if cfg.LiveSearch.Timeout == 0 {
		cfg.LiveSearch.Timeout = 30 * time.Second
	}
	if cfg.LiveSearch.Retries == 0 {
		cfg.LiveSearch.Retries = 3
	}
	if cfg.LiveSearch.MaxResults < 0 || cfg.LiveSearch.Retries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("live_search.max_results and live_search.retries must be positive"))
	}

	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 10
	}
	if cfg.Agent.MaxSteps < 1 {
		errs = multierror.Append(errs, fmt.Errorf("agent.max_steps must be at least 1"))
	}

	if cfg.Evaluation.Workers == 0 {
		cfg.Evaluation.Workers = 1
	}
	if cfg.Evaluation.Timeout == 0 {
		cfg.Evaluation.Timeout = 2 * time.Minute
	}
	if cfg.Evaluation.Workers < 1 {
		errs = multierror.Append(errs, fmt.Errorf("evaluation.workers must be at least 1"))
	}
	if cfg.Evaluation.MaxTasks < 0 {
		errs = multierror.Append(errs, fmt.Errorf("evaluation.max_tasks must not be negative"))
	}

	if cfg.Optimize.Iterations == 0 {
		cfg.Optimize.Iterations = 2
	}
	if cfg.Optimize.Candidates == 0 {
		cfg.Optimize.Candidates = 1
	}
	if cfg.Optimize.ValidationEvery == 0 {
		cfg.Optimize.ValidationEvery = 1
	}
	if cfg.Optimize.Proposer == "" {
		cfg.Optimize.Proposer = "template"
	}
	if cfg.Optimize.Output == "" {
		cfg.Optimize.Output = "optimized_prompt.txt"
	}
	if cfg.Optimize.Iterations < 1 || cfg.Optimize.Candidates < 1 {
		errs = multierror.Append(errs, fmt.Errorf("optimize.iterations and optimize.candidates must be at least 1"))
	}
	if cfg.Optimize.Patience < 0 {
		errs = multierror.Append(errs, fmt.Errorf("optimize.patience must not be negative"))
	}
	if !slices.Contains(proposers, cfg.Optimize.Proposer) {
		errs = multierror.Append(errs, fmt.Errorf("optimize.proposer %q: want one of %v", cfg.Optimize.Proposer, proposers))
	}
	if cfg.Optimize.Proposer == "files" && cfg.Optimize.VariantsDir == "" {
		errs = multierror.Append(errs, fmt.Errorf("optimize.variants_dir is required for the files proposer"))
	}
	if cfg.Optimize.S3Bucket != "" && cfg.Optimize.S3Key == "" {
		cfg.Optimize.S3Key = filepath.Base(cfg.Optimize.Output)
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Results.Dir, "history.db")
	}
	if cfg.Pricing.Provider == "" {
		cfg.Pricing.Provider = cfg.LLM.Provider
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "papertune"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	return errs.ErrorOrNil()
}
