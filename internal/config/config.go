package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port   string `validate:"required,numeric"`
	APIKey string

	LogLevel string `validate:"oneof=debug info warn error"`

	// Corpus sources
	CorpusFile   string
	SourceFolder string
	TargetDomain string
	Seeds        []string `validate:"dive,url"`
	IndexDir     string   `validate:"required"`

	// Crawl
	CrawlMaxDepth    int           `validate:"gte=1"`
	CrawlMaxPages    int           `validate:"gte=1"`
	CrawlRate        float64       `validate:"gt=0"`
	FetchTimeout     time.Duration `validate:"gt=0"`
	FetchMaxBytes    int64         `validate:"gt=0"`
	FetchInsecureTLS bool
	FetchConcurrency int `validate:"gte=1"`

	// Ingestion
	TransientPatterns    []string
	OCREnabled           bool
	OCRLang              string
	PDFFallbackPdftotext bool

	// Chunking
	ChunkSize    int `validate:"gt=0"`
	ChunkOverlap int `validate:"gte=0,ltfield=ChunkSize"`

	// Retrieval
	RetrievalK     int `validate:"gte=1"`
	MinChunkLength int `validate:"gte=0"`

	// Embedding provider
	EmbedProvider  string `validate:"oneof=huggingface ollama"`
	EmbedModel     string `validate:"required"`
	EmbedBaseURL   string
	EmbedBatchSize int `validate:"gte=1"`

	// Language model provider
	LLMProvider     string `validate:"oneof=huggingface anthropic ollama"`
	LLMModel        string `validate:"required"`
	LLMBaseURL      string
	LLMTemperature  float64 `validate:"gte=0,lte=2"`
	LLMMaxTokens    int     `validate:"gt=0"`
	LLMTimeout      time.Duration
	HFToken         string
	AnthropicAPIKey string

	// Answering
	SystemPrompt    string
	ErrorMessageMax int `validate:"gte=20"`
}

// Default models per provider, used when EMBED_MODEL or LLM_MODEL is unset.
var (
	DefaultEmbedModels = map[string]string{
		"huggingface": "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2",
		"ollama":      "nomic-embed-text",
	}
	DefaultLLMModels = map[string]string{
		"huggingface": "Qwen/Qwen2.5-7B-Instruct",
		"anthropic":   "claude-3-5-sonnet-latest",
		"ollama":      "llama3.2",
	}
)

// ErrNoTargetDomain is returned by ValidateCrawl when no domain restricts links.
var ErrNoTargetDomain = errors.New("TARGET_DOMAIN is required to crawl")

// Load reads configuration from the environment (and a .env file if present),
// then overlays the corpus manifest named by CORPUS_FILE.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	cfg := Config{
		Port:   envOr("PORT", "8090"),
		APIKey: os.Getenv("API_KEY"),

		LogLevel: strings.ToLower(envOr("LOG_LEVEL", "info")),

		CorpusFile:   os.Getenv("CORPUS_FILE"),
		SourceFolder: envOr("SOURCE_FOLDER", "data1"),
		TargetDomain: os.Getenv("TARGET_DOMAIN"),
		IndexDir:     envOr("INDEX_DIR", "sretensk_db"),

		CrawlMaxDepth:    envInt("CRAWL_MAX_DEPTH", 2),
		CrawlMaxPages:    envInt("CRAWL_MAX_PAGES", 50),
		CrawlRate:        envFloat("CRAWL_RATE", 5),
		FetchTimeout:     envDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxBytes:    envInt64("FETCH_MAX_BYTES", 10<<20),
		FetchInsecureTLS: envBool("FETCH_INSECURE_TLS", false),
		FetchConcurrency: envInt("FETCH_CONCURRENCY", 4),

		TransientPatterns:    envList("TRANSIENT_PATTERNS", []string{"~$*", ".~lock.*#", "*.tmp", ".*"}),
		OCREnabled:           envBool("OCR_ENABLED", true),
		OCRLang:              envOr("OCR_LANG", "rus+eng"),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		ChunkSize:    envInt("CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),

		RetrievalK:     envInt("RETRIEVAL_K", 10),
		MinChunkLength: envInt("MIN_CHUNK_LENGTH", 40),

		EmbedProvider:  envOr("EMBED_PROVIDER", "huggingface"),
		EmbedBaseURL:   os.Getenv("EMBED_BASE_URL"),
		EmbedBatchSize: envInt("EMBED_BATCH_SIZE", 32),

		LLMProvider:     envOr("LLM_PROVIDER", "huggingface"),
		LLMBaseURL:      os.Getenv("LLM_BASE_URL"),
		LLMTemperature:  envFloat("LLM_TEMPERATURE", 0.15),
		LLMMaxTokens:    envInt("LLM_MAX_TOKENS", 2048),
		LLMTimeout:      envDuration("LLM_TIMEOUT", 120*time.Second),
		HFToken:         os.Getenv("HF_TOKEN"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		SystemPrompt:    os.Getenv("SYSTEM_PROMPT"),
		ErrorMessageMax: envInt("ERROR_MESSAGE_MAX", 200),
	}

	cfg.EmbedModel = envOr("EMBED_MODEL", DefaultEmbedModels[cfg.EmbedProvider])
	cfg.LLMModel = envOr("LLM_MODEL", DefaultLLMModels[cfg.LLMProvider])

	if cfg.CorpusFile != "" {
		corpus, err := LoadCorpus(cfg.CorpusFile)
		if err != nil {
			return cfg, err
		}
		cfg.applyCorpus(corpus)
	}

	return cfg, nil
}

// Validate checks field constraints and provider credentials.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.EmbedProvider == "huggingface" && c.HFToken == "" {
		return fmt.Errorf("HF_TOKEN is required for the huggingface embedding provider")
	}
	switch c.LLMProvider {
	case "huggingface":
		if c.HFToken == "" {
			return fmt.Errorf("HF_TOKEN is required for the huggingface LLM provider")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic LLM provider")
		}
	}
	return nil
}

// ValidateCrawl checks the settings only the crawl and build paths need.
func (c Config) ValidateCrawl() error {
	if strings.TrimSpace(c.TargetDomain) == "" {
		return ErrNoTargetDomain
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
