package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cvrag/internal/domain"
)

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Host                string   `yaml:"host" mapstructure:"host"`
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit           float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst           int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	BodyLimit           string   `yaml:"body_limit" mapstructure:"body_limit"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// Address returns host:port for the listener.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AppInfoConfig names the service in metadata endpoints.
type AppInfoConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Version     string `yaml:"version" mapstructure:"version"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// LoggingConfig selects log level and output format (console or json).
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ContentConfig points at the CV source. An empty source uses the embedded CV.
type ContentConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Owner  string `yaml:"owner" mapstructure:"owner"`
}

// ChunkerConfig configures how documents are split into chunks.
// Sizes are measured in characters.
type ChunkerConfig struct {
	Type         string `yaml:"type" mapstructure:"type"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Model     string `yaml:"model" mapstructure:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string               `yaml:"type" mapstructure:"type"`
	TimeoutSecs int                  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	OpenAI      OpenAIEmbedderConfig `yaml:"openai" mapstructure:"openai"`
	Gemini      GeminiEmbedderConfig `yaml:"gemini" mapstructure:"gemini"`
}

// LLMConfig selects the chat model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv   string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	Model       string  `yaml:"model" mapstructure:"model"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ResolveAPIKey returns the literal key or the value of APIKeyEnv.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// PgvectorConfig contains connection details for the Postgres vector table.
type PgvectorConfig struct {
	URL                string `yaml:"url,omitempty" mapstructure:"url"`
	Host               string `yaml:"host,omitempty" mapstructure:"host"`
	Port               string `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user,omitempty" mapstructure:"user"`
	Password           string `yaml:"password,omitempty" mapstructure:"password"`
	DBName             string `yaml:"dbname,omitempty" mapstructure:"dbname"`
	SSLMode            string `yaml:"sslmode" mapstructure:"sslmode"`
	Table              string `yaml:"table" mapstructure:"table"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
}

// Configured reports whether any connection detail is set.
func (c PgvectorConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns URL when set, or assembles one from the individual fields.
func (c PgvectorConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Host == "" || c.DBName == "" {
		return "", fmt.Errorf("postgres not configured (vector_store.pgvector.url or host/dbname)")
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String(), nil
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	APIKey      string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	Distance    string `yaml:"distance" mapstructure:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
// An empty type picks pgvector when a connection is configured, memory otherwise.
type VectorStoreConfig struct {
	Type     string         `yaml:"type" mapstructure:"type"`
	Pgvector PgvectorConfig `yaml:"pgvector" mapstructure:"pgvector"`
	Qdrant   QdrantConfig   `yaml:"qdrant" mapstructure:"qdrant"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// ConversationConfig bounds session windows and incoming messages.
type ConversationConfig struct {
	MaxMemory        int `yaml:"max_memory" mapstructure:"max_memory"`
	MaxMessageLength int `yaml:"max_message_length" mapstructure:"max_message_length"`
}

// RetryConfig bounds retries of transient upstream failures.
type RetryConfig struct {
	MaxRetries        int `yaml:"max_retries" mapstructure:"max_retries"`
	InitialIntervalMs int `yaml:"initial_interval_ms" mapstructure:"initial_interval_ms"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" mapstructure:"type"`
	MaxSentences int    `yaml:"max_sentences" mapstructure:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server          ServerConfig       `yaml:"server" mapstructure:"server"`
	App             AppInfoConfig      `yaml:"app" mapstructure:"app"`
	Logging         LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Content         ContentConfig      `yaml:"content" mapstructure:"content"`
	Chunker         ChunkerConfig      `yaml:"chunker" mapstructure:"chunker"`
	Embedder        EmbedderConfig     `yaml:"embedder" mapstructure:"embedder"`
	LLM             LLMConfig          `yaml:"llm" mapstructure:"llm"`
	VectorStore     VectorStoreConfig  `yaml:"vector_store" mapstructure:"vector_store"`
	Retrieval       RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Conversation    ConversationConfig `yaml:"conversation" mapstructure:"conversation"`
	Retry           RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Summarizer      SummarizerConfig   `yaml:"summarizer" mapstructure:"summarizer"`
	SampleQuestions []string           `yaml:"sample_questions" mapstructure:"sample_questions"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"app.name":                        {"APP_NAME"},
	"app.version":                     {"APP_VERSION"},
	"app.environment":                 {"ENVIRONMENT"},
	"logging.level":                   {"LOG_LEVEL"},
	"logging.format":                  {"LOG_FORMAT"},
	"server.host":                     {"HOST"},
	"server.port":                     {"PORT"},
	"server.allowed_origins":          {"ALLOWED_ORIGINS"},
	"content.source":                  {"CV_SOURCE"},
	"content.owner":                   {"CV_OWNER"},
	"chunker.chunk_size":              {"EMBEDDING_CHUNK_SIZE"},
	"chunker.chunk_overlap":           {"EMBEDDING_CHUNK_OVERLAP"},
	"embedder.type":                   {"EMBEDDER_TYPE"},
	"llm.provider":                    {"LLM_PROVIDER"},
	"llm.model":                       {"OPENAI_MODEL", "LLM_MODEL"},
	"llm.temperature":                 {"OPENAI_TEMPERATURE", "LLM_TEMPERATURE"},
	"vector_store.type":               {"VECTOR_STORE_TYPE"},
	"vector_store.pgvector.url":       {"DATABASE_URL"},
	"vector_store.pgvector.host":      {"DB_HOST"},
	"vector_store.pgvector.port":      {"DB_PORT"},
	"vector_store.pgvector.user":      {"DB_USER"},
	"vector_store.pgvector.password":  {"DB_PASSWORD"},
	"vector_store.pgvector.dbname":    {"DB_NAME"},
	"vector_store.pgvector.sslmode":   {"DB_SSL_MODE"},
	"vector_store.qdrant.url":         {"QDRANT_URL"},
	"vector_store.qdrant.api_key":     {"QDRANT_API_KEY"},
	"retrieval.top_k":                 {"RETRIEVAL_TOP_K"},
	"conversation.max_memory":         {"MAX_CONVERSATION_MEMORY"},
	"conversation.max_message_length": {"MAX_MESSAGE_LENGTH"},
}

// Load reads a config from a specified path layered over defaults and
// overridden by environment variables. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	defaults, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, err
		}
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/cvrag/config.yaml.
// If neither exists, defaults plus environment are returned with an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err == nil {
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	cfg, err := Load("")
	return cfg, "", err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *AppConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Default returns the built-in configuration with derived defaults applied.
func Default() *AppConfig {
	cfg := defaultConfig()
	applyConfigDefaults(cfg)
	return cfg
}

func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cvrag", "config.yaml"), nil
}

// Validate checks ranges and enumerations. API keys are checked when
// the clients are constructed.
func (c *AppConfig) Validate() error {
	bad := func(setting, format string, args ...any) error {
		return &domain.ConfigurationError{Setting: setting, Reason: fmt.Sprintf(format, args...)}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return bad("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !oneOf(c.Logging.Format, "console", "json") {
		return bad("logging.format", "unknown format %q", c.Logging.Format)
	}
	if !oneOf(c.Chunker.Type, "recursive", "sentence") {
		return bad("chunker.type", "unknown chunker %q", c.Chunker.Type)
	}
	if c.Chunker.ChunkSize <= 0 {
		return bad("chunker.chunk_size", "must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return bad("chunker.chunk_overlap", "must be in [0, chunk_size)")
	}
	if !oneOf(c.Embedder.Type, "openai", "gemini", "tfidf") {
		return bad("embedder.type", "unknown embedder %q", c.Embedder.Type)
	}
	if !oneOf(c.LLM.Provider, "openai", "anthropic", "gemini") {
		return bad("llm.provider", "unknown provider %q", c.LLM.Provider)
	}
	if !oneOf(c.VectorStore.Type, "memory", "pgvector", "qdrant") {
		return bad("vector_store.type", "unknown vector store %q", c.VectorStore.Type)
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant.URL == "" {
		return bad("vector_store.qdrant.url", "required for the qdrant vector store")
	}
	if c.Retrieval.TopK <= 0 {
		return bad("retrieval.top_k", "must be positive")
	}
	if c.Conversation.MaxMemory <= 0 {
		return bad("conversation.max_memory", "must be positive")
	}
	if c.Conversation.MaxMessageLength <= 0 {
		return bad("conversation.max_message_length", "must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return bad("retry.max_retries", "must not be negative")
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			AllowedOrigins:      []string{"*"},
			RateLimit:           2,
			RateBurst:           10,
			BodyLimit:           "64K",
			ShutdownTimeoutSecs: 10,
		},
		App:     AppInfoConfig{Name: "CV Chatbot API", Version: "2.0.0", Environment: "development"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Chunker: ChunkerConfig{Type: "recursive", ChunkSize: 500, ChunkOverlap: 50},
		Embedder: EmbedderConfig{
			Type:        "openai",
			TimeoutSecs: 30,
			OpenAI:      OpenAIEmbedderConfig{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY", Model: "text-embedding-3-small", BatchSize: 32},
			Gemini:      GeminiEmbedderConfig{APIKeyEnv: "GOOGLE_API_KEY", Model: "text-embedding-004"},
		},
		LLM: LLMConfig{Provider: "openai", Temperature: 0.7, MaxTokens: 1024, TimeoutSecs: 60},
		VectorStore: VectorStoreConfig{
			Pgvector: PgvectorConfig{Port: "5432", SSLMode: "require", Table: "cv_embeddings", ConnectTimeoutSecs: 5},
			Qdrant:   QdrantConfig{Collection: "cv_embeddings", Distance: "Cosine", TimeoutSecs: 15},
		},
		Retrieval:    RetrievalConfig{TopK: 4},
		Conversation: ConversationConfig{MaxMemory: 10, MaxMessageLength: 1000},
		Retry:        RetryConfig{MaxRetries: 1, InitialIntervalMs: 500},
		Summarizer:   SummarizerConfig{Type: "frequency", MaxSentences: 3},
		SampleQuestions: []string{
			"What is Mathieu's experience in cybersecurity?",
			"Tell me about Mathieu's education in financial mathematics",
			"What programming languages does Mathieu know best?",
			"Describe Mathieu's transition from engineering to finance",
			"What embedded systems experience does Mathieu have?",
			"Tell me about Mathieu's work at Verimatrix",
			"What machine learning projects has Mathieu worked on?",
			"How long has Mathieu been working in software engineering?",
			"What is the FintechModeler project?",
			"Describe Mathieu's experience with real-time systems",
		},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	origins := cfg.Server.AllowedOrigins[:0]
	for _, o := range cfg.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.Server.AllowedOrigins = origins
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.VectorStore.Type == "" || cfg.VectorStore.Type == "auto" {
		if cfg.VectorStore.Pgvector.Configured() {
			cfg.VectorStore.Type = "pgvector"
		} else {
			cfg.VectorStore.Type = "memory"
		}
	}
	if cfg.VectorStore.Pgvector.Table == "" {
		cfg.VectorStore.Pgvector.Table = "cv_embeddings"
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "cv_embeddings"
	}
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-3.5-turbo"
		}
	case "anthropic":
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		}
	case "gemini":
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gemini-2.0-flash"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Embedder.OpenAI.BaseURL == "" {
		cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedder.OpenAI.APIKeyEnv == "" {
		cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.OpenAI.Model == "" {
		cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.OpenAI.BatchSize == 0 {
		cfg.Embedder.OpenAI.BatchSize = 32
	}
	if cfg.Embedder.Gemini.APIKeyEnv == "" {
		cfg.Embedder.Gemini.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}
