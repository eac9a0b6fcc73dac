package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Matching    MatchingConfig  `toml:"matching"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Vector      VectorConfig    `toml:"vector"`
	Ingest      IngestConfig    `toml:"ingest"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Mail        MailConfig      `toml:"mail"`
	GitHub      GitHubConfig    `toml:"github"`
	Seed        SeedConfig      `toml:"seed"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

type StorageConfig struct {
	Type   string       `toml:"type"`
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`                      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency" validate:"gte=1"`       // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"`                 // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive" validate:"gte=1"`       // Max times a message can be received before dead-letter
	QueueName         string `toml:"queue_name" validate:"required"`     // Queue name prefix in Badger
}

// MatchingConfig controls matching job execution and retry behavior
type MatchingConfig struct {
	MaxAttempts         int    `toml:"max_attempts" validate:"gte=1,lte=10"`          // Task-level retry budget per job
	RetryBaseDelay      string `toml:"retry_base_delay"`                              // e.g., "2s" - base delay for exponential backoff
	RetryMaxDelay       string `toml:"retry_max_delay"`                               // e.g., "30s" - backoff ceiling
	StaleRunMaxAge      string `toml:"stale_run_max_age"`                             // Runs still "running" after this age are swept failed
	DefaultSnippetLimit int    `toml:"default_snippet_limit" validate:"gte=1,lte=10"` // Fallback snippet limit per criterion
	MaxCriteria         int    `toml:"max_criteria" validate:"gte=1"`                 // Maximum criteria per configuration
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for match review (default: "gemini-2.0-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for match review (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 1024)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// EmbeddingConfig contains embedding provider configuration
type EmbeddingConfig struct {
	Provider    string `toml:"provider"`                       // "openai" or "gemini" (default: "openai")
	Model       string `toml:"model"`                          // Embedding model (default: "text-embedding-3-small")
	Dimension   int    `toml:"dimension" validate:"gte=1"`     // Vector dimension (default: 1536)
	Endpoint    string `toml:"endpoint"`                       // OpenAI-compatible embeddings endpoint
	APIKey      string `toml:"api_key"`                        // API key for the embedding provider
	Timeout     string `toml:"timeout"`                        // Request timeout (default: "30s")
	BatchSize   int    `toml:"batch_size" validate:"gte=1"`    // Texts per request (default: 16)
	Concurrency int    `toml:"concurrency" validate:"gte=1"`   // Parallel embedding requests during ingestion
}

// VectorConfig contains the in-process vector index configuration
type VectorConfig struct {
	IndexPath       string `toml:"index_path"`                        // Snapshot path for the HNSW index
	M               int    `toml:"m" validate:"gte=2"`                // HNSW max neighbors per node
	EfSearch        int    `toml:"ef_search" validate:"gte=1"`        // HNSW search expansion factor
	OverfetchFactor int    `toml:"overfetch_factor" validate:"gte=1"` // Multiplier applied to limit before metadata filtering
}

// IngestConfig contains document fetch, extraction and chunking configuration
type IngestConfig struct {
	ChunkSize      int    `toml:"chunk_size" validate:"gte=100"`   // Chunk window in runes (default: 1200)
	ChunkOverlap   int    `toml:"chunk_overlap" validate:"gte=0"`  // Overlap between consecutive chunks (default: 200)
	RequestTimeout string `toml:"request_timeout"`                 // HTTP fetch timeout (default: "30s")
	MaxBodySize    int    `toml:"max_body_size" validate:"gte=1"`  // Maximum response body size in bytes
	UserAgent      string `toml:"user_agent"`                      // User agent for document fetches
	RenderJS       bool   `toml:"render_js"`                       // Render JavaScript pages with headless Chrome
	RenderWait     string `toml:"render_wait"`                     // Wait time for JavaScript to settle (default: "3s")
}

// WebSocketConfig contains configuration for WebSocket streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"matching.job.target.search": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// SchedulerConfig contains cron schedules for background maintenance
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`           // Enable the maintenance scheduler
	StaleRunSchedule string `toml:"stale_run_schedule"` // Sweep stale runs (standard 5-field cron)
	SnapshotSchedule string `toml:"snapshot_schedule"`  // Persist the vector index snapshot
	MailPollSchedule string `toml:"mail_poll_schedule"` // Poll the IMAP intake mailbox
}

// MailConfig contains IMAP intake configuration
type MailConfig struct {
	Enabled  bool   `toml:"enabled"`  // Enable IMAP document intake
	Server   string `toml:"server"`   // IMAP server host:port (e.g., "imap.example.com:993")
	Username string `toml:"username"` // IMAP account username
	Password string `toml:"password"` // IMAP account password
	Mailbox  string `toml:"mailbox"`  // Mailbox to poll (default: "INBOX")
}

// GitHubConfig contains the GitHub intake connector configuration
type GitHubConfig struct {
	Token    string `toml:"token"`                       // GitHub API token (optional; unauthenticated works with low limits)
	MaxRepos int    `toml:"max_repos" validate:"gte=0"`  // Repositories to pull READMEs from per profile
}

// SeedConfig points at an optional YAML seed file applied at startup
type SeedConfig struct {
	Path string `toml:"path"` // Path to seed file; empty disables seeding
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in comparo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // Matching jobs are LLM-bound; a small pool is enough
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "comparo_tasks",
		},
		Matching: MatchingConfig{
			MaxAttempts:         3,
			RetryBaseDelay:      "2s",
			RetryMaxDelay:       "30s",
			StaleRunMaxAge:      "30m",
			DefaultSnippetLimit: 3,
			MaxCriteria:         20,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (GEMINI_API_KEY or config)
			Model:       "gemini-2.0-flash",
			Timeout:     "2m",
			RateLimit:   "4s", // Default to 4s (15 RPM) for free tier
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   1024,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			Dimension:   1536,
			Endpoint:    "https://api.openai.com/v1/embeddings",
			APIKey:      "", // User must provide API key (OPENAI_API_KEY or config)
			Timeout:     "30s",
			BatchSize:   16,
			Concurrency: 4,
		},
		Vector: VectorConfig{
			IndexPath:       "./data/vector/index.hnsw",
			M:               16,
			EfSearch:        32,
			OverfetchFactor: 4,
		},
		Ingest: IngestConfig{
			ChunkSize:      1200,
			ChunkOverlap:   200,
			RequestTimeout: "30s",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			UserAgent:      "comparo/1.0 (+https://github.com/ternarybob/comparo)",
			RenderJS:       false,
			RenderWait:     "3s",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing event",
			},
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency per-target events so large jobs don't flood clients
			ThrottleIntervals: map[string]string{
				"matching.job.target.search": "250ms",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			StaleRunSchedule: "*/10 * * * *", // Every 10 minutes
			SnapshotSchedule: "*/15 * * * *", // Every 15 minutes
			MailPollSchedule: "*/10 * * * *", // Every 10 minutes (only when mail intake enabled)
		},
		Mail: MailConfig{
			Enabled: false,
			Mailbox: "INBOX",
		},
		GitHub: GitHubConfig{
			Token:    "",
			MaxRepos: 5,
		},
		Seed: SeedConfig{
			Path: "",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COMPARO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COMPARO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COMPARO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("COMPARO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("COMPARO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("COMPARO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("COMPARO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Queue configuration
	if pollInterval := os.Getenv("COMPARO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("COMPARO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("COMPARO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("COMPARO_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Matching configuration
	if maxAttempts := os.Getenv("COMPARO_MATCHING_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Matching.MaxAttempts = ma
		}
	}

	// Provider API keys follow the conventional variable names first,
	// then the COMPARO_ prefixed ones.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("COMPARO_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("COMPARO_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	}
	if key := os.Getenv("COMPARO_EMBEDDING_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	}
	if provider := os.Getenv("COMPARO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Embedding configuration
	if endpoint := os.Getenv("COMPARO_EMBEDDING_ENDPOINT"); endpoint != "" {
		config.Embedding.Endpoint = endpoint
	}
	if model := os.Getenv("COMPARO_EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if dimension := os.Getenv("COMPARO_EMBEDDING_DIMENSION"); dimension != "" {
		if d, err := strconv.Atoi(dimension); err == nil {
			config.Embedding.Dimension = d
		}
	}

	// Mail configuration
	if password := os.Getenv("COMPARO_MAIL_PASSWORD"); password != "" {
		config.Mail.Password = password
	}

	// GitHub configuration
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if token := os.Getenv("COMPARO_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}

	// Seed configuration
	if seedPath := os.Getenv("COMPARO_SEED_PATH"); seedPath != "" {
		config.Seed.Path = seedPath
	}
}

// ApplyFlagOverrides applies CLI flag values to config (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for name, expr := range map[string]string{
		"scheduler.stale_run_schedule": c.Scheduler.StaleRunSchedule,
		"scheduler.snapshot_schedule":  c.Scheduler.SnapshotSchedule,
		"scheduler.mail_poll_schedule": c.Scheduler.MailPollSchedule,
	} {
		if expr == "" {
			continue
		}
		if err := ValidateCronSchedule(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}

	return nil
}

// ValidateCronSchedule validates a standard 5-field cron expression
func ValidateCronSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationOr parses a duration string, falling back to def on error or empty input
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
