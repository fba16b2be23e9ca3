package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MimeLyc/beatreel/pkg/log"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults; a
// runtime settings file can override a subset at startup and over HTTP.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: "openai" (any OpenAI-compatible endpoint) or "gemini" (default: openai)
// - LLM_API_KEY: API key for the openai provider (required for it)
// - LLM_API_URL: API endpoint URL (default: https://api.groq.com/openai/v1)
// - LLM_MODEL: Model name (default: llama-3.3-70b-versatile)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 4000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.7)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL / LLM_APP_NAME: optional referer/title headers
// - GEMINI_API_KEY: API key for the gemini provider (required for it)
// - GEMINI_MODEL: Gemini model name (default: gemini-2.0-flash)
//
// Scene Renderer Configuration:
// - RENDER_API_KEY: video generation API key (required)
// - RENDER_API_URL: base URL (default: BytePlus Ark v3 endpoint)
// - RENDER_MODEL: generation model (default: seedance-1-0-lite-i2v-250428)
// - RENDER_POLL_INTERVAL / RENDER_POLL_TIMEOUT: seconds (default: 2 / 180)
// - RENDER_TIMEOUT: per-request timeout in seconds (default: 60)
// - RENDER_DURATION: requested clip seconds, clamped to 5..8 (default: 6)
// - RENDER_CAMERA_FIXED: camera lock flag (default: false)
// - RENDER_PLACEHOLDER: substitute a slate clip when a beat render fails
//   instead of failing the run (default: false)
//
// Narration Synthesizer Configuration:
// - TTS_ENGINE: command | sherpa | openai (default: command)
// - TTS_COMMAND / TTS_VOICE / TTS_RATE_WPM: local engine (default: say / Samantha / 175)
// - TTS_SERVER_URL: sherpa engine endpoint (default: http://127.0.0.1:8081)
// - TTS_API_KEY / TTS_API_URL / TTS_MODEL: openai engine
// - NARRATION_LANGUAGE: BCP-47 narration language (default: en)
//
// Pipeline Configuration:
// - OUTPUT_DIR: run artifact root (default: /app/output)
// - QUEUE_WORKERS: concurrent runs (default: 1)
// - BEAT_CONCURRENCY: per-run beat fan-out (default: 4)
// - THEME: default theme id (default: none)
// - THEMES_FILE: YAML theme pack override (default: embedded set)
//
// Retention Configuration:
// - RETENTION_CRON: sweep schedule (default: 0 3 * * *)
// - RETENTION_DAYS: run directory age cutoff (default: 7)
//
// HTTP Configuration:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_ENABLED: serve the static UI (default: true)
// - UI_STATIC_DIR: static asset dir (default: web/static)
//
// Research Configuration:
// - RESEARCH_ENABLED: gather a topic brief before planning (default: false)
// - SEARCH_API_KEY / SEARCH_API_URL: Tavily-style search API
// - AGENT_MAX_ITERATIONS: tool-call loop bound (default: 6)
//
// System Configuration:
// - DATA_DIR: database and caches (default: /app/data)
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - TZ: timezone (default: UTC)

type Config struct {
	LLM LLMConfig `json:"llm"`

	Gemini GeminiConfig `json:"gemini"`

	Speech SpeechConfig `json:"speech"`

	Render RenderConfig `json:"render"`

	Pipeline PipelineConfig `json:"pipeline"`

	Retention RetentionConfig `json:"retention"`

	HTTP HTTPConfig `json:"http"`

	// Search Configuration (for the research web search tool)
	Search SearchConfig `json:"search"`

	Agent AgentConfig `json:"agent"`

	System SystemConfig `json:"system"`
}

// LLMConfig holds the configuration for the chat-completion client.
// Works with any OpenAI-compatible provider (Groq, OpenRouter, OpenAI).
type LLMConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// GeminiConfig holds the alternative planner provider configuration.
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// SpeechConfig holds the narration synthesizer configuration.
type SpeechConfig struct {
	Engine    string       `json:"engine"`
	Command   string       `json:"command"`
	Voice     string       `json:"voice"`
	RateWPM   int          `json:"rate_wpm"`
	ServerURL string       `json:"server_url"`
	APIKey    string       `json:"api_key"`
	APIURL    string       `json:"api_url"`
	Model     string       `json:"model"`
	Language  language.Tag `json:"language"`
}

// RenderConfig holds the scene renderer configuration.
// Interval and timeout values are seconds.
type RenderConfig struct {
	APIKey         string `json:"api_key"`
	APIURL         string `json:"api_url"`
	Model          string `json:"model"`
	PollInterval   int    `json:"poll_interval"`
	PollTimeout    int    `json:"poll_timeout"`
	RequestTimeout int    `json:"request_timeout"`
	Duration       int    `json:"duration"`
	CameraFixed    bool   `json:"camera_fixed"`
	Placeholder    bool   `json:"placeholder"`
}

// PipelineConfig holds run orchestration settings.
type PipelineConfig struct {
	OutputDir       string `json:"output_dir"`
	QueueWorkers    int    `json:"queue_workers"`
	BeatConcurrency int    `json:"beat_concurrency"`
	Theme           string `json:"theme"`
	ThemesFile      string `json:"themes_file"`
}

// RetentionConfig holds the run directory sweep settings.
type RetentionConfig struct {
	Cron string `json:"cron"`
	Days int    `json:"days"`
}

// HTTPConfig holds the front end server settings.
type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIEnabled   bool   `json:"ui_enabled"`
	UIStaticDir string `json:"ui_static_dir"`
}

// SearchConfig holds the configuration for the web search tool.
type SearchConfig struct {
	APIKey string `json:"api_key"` // Tavily API key
	APIURL string `json:"api_url"` // Tavily API URL
}

// AgentConfig holds the research agent configuration.
type AgentConfig struct {
	MaxIterations   int  `json:"max_iterations"` // Max tool calling iterations
	ResearchEnabled bool `json:"research_enabled"`
}

// SystemConfig holds the system configuration.
type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	TZ       string `json:"tz"`
	LogLevel string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	narrationLang, err := language.Parse(getEnvString("NARRATION_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid NARRATION_LANGUAGE: %w", err)
	}

	config := &Config{
		LLM: LLMConfig{
			Provider:    getEnvString("LLM_PROVIDER", ProviderOpenAI),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://api.groq.com/openai/v1"),
			Model:       getEnvString("LLM_MODEL", "llama-3.3-70b-versatile"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnvString("GEMINI_API_KEY", ""),
			Model:  getEnvString("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Speech: SpeechConfig{
			Engine:    getEnvString("TTS_ENGINE", EngineCommand),
			Command:   getEnvString("TTS_COMMAND", "say"),
			Voice:     getEnvString("TTS_VOICE", "Samantha"),
			RateWPM:   getEnvInt("TTS_RATE_WPM", 175),
			ServerURL: getEnvString("TTS_SERVER_URL", "http://127.0.0.1:8081"),
			APIKey:    getEnvString("TTS_API_KEY", ""),
			APIURL:    getEnvString("TTS_API_URL", "https://api.openai.com/v1"),
			Model:     getEnvString("TTS_MODEL", "tts-1"),
			Language:  narrationLang,
		},
		Render: RenderConfig{
			APIKey:         getEnvString("RENDER_API_KEY", ""),
			APIURL:         getEnvString("RENDER_API_URL", "https://ark.ap-southeast.bytepluses.com/api/v3"),
			Model:          getEnvString("RENDER_MODEL", "seedance-1-0-lite-i2v-250428"),
			PollInterval:   getEnvInt("RENDER_POLL_INTERVAL", 2),
			PollTimeout:    getEnvInt("RENDER_POLL_TIMEOUT", 180),
			RequestTimeout: getEnvInt("RENDER_TIMEOUT", 60),
			Duration:       clampInt(getEnvInt("RENDER_DURATION", 6), 5, 8),
			CameraFixed:    getEnvBool("RENDER_CAMERA_FIXED", false),
			Placeholder:    getEnvBool("RENDER_PLACEHOLDER", false),
		},
		Pipeline: PipelineConfig{
			OutputDir:       getEnvString("OUTPUT_DIR", "/app/output"),
			QueueWorkers:    getEnvInt("QUEUE_WORKERS", 1),
			BeatConcurrency: getEnvInt("BEAT_CONCURRENCY", 4),
			Theme:           getEnvString("THEME", "none"),
			ThemesFile:      getEnvString("THEMES_FILE", ""),
		},
		Retention: RetentionConfig{
			Cron: getEnvString("RETENTION_CRON", "0 3 * * *"),
			Days: getEnvInt("RETENTION_DAYS", 7),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "web/static"),
		},
		Search: SearchConfig{
			APIKey: getEnvString("SEARCH_API_KEY", ""),
			APIURL: getEnvString("SEARCH_API_URL", "https://api.tavily.com/search"),
		},
		Agent: AgentConfig{
			MaxIterations:   getEnvInt("AGENT_MAX_ITERATIONS", 6),
			ResearchEnabled: getEnvBool("RESEARCH_ENABLED", false),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			TZ:       getEnvString("TZ", "UTC"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: provider=%s model=%s tts=%s output=%s data=%s",
		config.LLM.Provider, config.PlannerModel(), config.Speech.Engine,
		config.Pipeline.OutputDir, config.System.DataDir)

	return config, nil
}

// Provider and engine names accepted by validate.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	EngineCommand = "command"
	EngineSherpa  = "sherpa"
	EngineOpenAI  = "openai"
)

// validate checks if all required configuration is properly set.
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	if c.Render.APIKey == "" {
		return fmt.Errorf("RENDER_API_KEY is required")
	}

	switch c.Speech.Engine {
	case EngineCommand, EngineSherpa:
	case EngineOpenAI:
		if c.Speech.APIKey == "" {
			return fmt.Errorf("TTS_API_KEY is required for the openai engine")
		}
	default:
		return fmt.Errorf("unknown TTS_ENGINE %q", c.Speech.Engine)
	}

	if c.Agent.ResearchEnabled && c.Search.APIKey == "" {
		return fmt.Errorf("SEARCH_API_KEY is required when RESEARCH_ENABLED is set")
	}

	if c.Pipeline.QueueWorkers < 1 || c.Pipeline.BeatConcurrency < 1 {
		return fmt.Errorf("QUEUE_WORKERS and BEAT_CONCURRENCY must be at least 1")
	}

	return nil
}

// PlannerModel names the model the active provider will plan with.
func (c *Config) PlannerModel() string {
	if c.LLM.Provider == ProviderGemini {
		return c.Gemini.Model
	}
	return c.LLM.Model
}

// DBPath is the sqlite database location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "beatreel.db")
}

// RunsDir is where per-run artifact directories live.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Pipeline.OutputDir, "runs")
}

// BriefCacheDir is where research briefs are cached.
func (c *Config) BriefCacheDir() string {
	return filepath.Join(c.System.DataDir, "briefs")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
