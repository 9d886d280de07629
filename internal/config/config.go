package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig      `toml:"server"`      // HTTP server settings
	Logging     LoggingConfig     `toml:"logging"`     // Application logging settings
	Storage     StorageConfig     `toml:"storage"`     // Data persistence settings
	Chat        ChatConfig        `toml:"chat"`        // Conversation and hand-off settings
	Suggestions SuggestionsConfig `toml:"suggestions"` // Operator suggestion drafting settings
	Bot         BotConfig         `toml:"bot"`         // Automated responder settings
	Encryption  EncryptionConfig  `toml:"encryption"`  // End-to-end message encryption settings
	Uploads     UploadsConfig     `toml:"uploads"`     // File upload settings
	Admin       AdminConfig       `toml:"admin"`       // Admin dashboard access settings
	OpenAI      OpenAIConfig      `toml:"openai"`      // OpenAI provider settings
	Gemini      GeminiConfig      `toml:"gemini"`      // Gemini provider settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, WebSocket traffic needs 0)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type           string `toml:"type"`             // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath string `toml:"sqlite_base_path"` // Directory for the SQLite database file
}

// ChatConfig contains conversation lifecycle and hand-off settings
type ChatConfig struct {
	// Grace period after a chat-activity "closed" notification before the
	// conversation is ended if not reopened. Held centrally by the
	// hand-off coordinator, not per dashboard.
	DisconnectGraceMinutes int `toml:"disconnect_grace_minutes"`

	HistoryLimit int `toml:"history_limit"` // Maximum messages returned by the history endpoint (0 = unlimited)
}

// SuggestionsConfig contains operator suggestion drafting settings
type SuggestionsConfig struct {
	Enabled     bool    `toml:"enabled"`      // Enable or disable suggestion drafting
	Provider    string  `toml:"provider"`     // "openai" or "gemini"
	Model       string  `toml:"model"`        // Model for drafting replies
	MaxTokens   int     `toml:"max_tokens"`   // Maximum tokens per drafted reply
	Temperature float64 `toml:"temperature"`  // Drafting randomness (0.0-1.0)
	ContextSize int     `toml:"context_size"` // Number of prior messages included as drafting context
}

// BotConfig contains automated responder settings
type BotConfig struct {
	Enabled     bool    `toml:"enabled"`      // Enable or disable automated replies for unclaimed conversations
	Provider    string  `toml:"provider"`     // "openai" or "gemini"
	Model       string  `toml:"model"`        // Model for automated replies
	MaxTokens   int     `toml:"max_tokens"`   // Maximum tokens per reply
	Temperature float64 `toml:"temperature"`  // Reply randomness (0.0-1.0)
	Greeting    string  `toml:"greeting"`     // Message sent when a new conversation starts
	Fallback    string  `toml:"fallback"`     // Reply used when the provider is unavailable
	PromptPath  string  `toml:"prompt_path"`  // Path to the system prompt file (optional)
	ContextSize int     `toml:"context_size"` // Number of prior messages included as reply context
	TimeoutSecs int     `toml:"timeout_secs"` // Provider request timeout in seconds
}

// EncryptionConfig contains end-to-end encryption helper settings
type EncryptionConfig struct {
	Enabled bool `toml:"enabled"` // Offer per-session key exchange to widget clients
}

// UploadsConfig contains file upload settings
type UploadsConfig struct {
	Dir       string `toml:"dir"`         // Directory where uploaded files are stored
	MaxSizeMB int    `toml:"max_size_mb"` // Maximum upload size in megabytes
}

// AdminConfig contains admin dashboard access settings
type AdminConfig struct {
	AuthToken string `toml:"auth_token"` // Token expected in the X-Chatbot-Token header for admin routes
}

// OpenAIConfig contains OpenAI provider configuration.
// BaseURL allows self-hosted or proxy endpoints instead of api.openai.com.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`  // API key (overridable via OPENAI_API_KEY)
	BaseURL string `toml:"base_url"` // Optional base URL override
}

// GeminiConfig contains Gemini provider configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"` // API key (overridable via GEMINI_API_KEY)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "console"
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		return fmt.Errorf("sqlite_base_path is required when storage type is sqlite")
	}

	// Chat defaults: the 3-minute disconnect grace matches the dashboard contract
	if c.Chat.DisconnectGraceMinutes == 0 {
		c.Chat.DisconnectGraceMinutes = 3
	}
	if c.Chat.DisconnectGraceMinutes < 0 {
		return fmt.Errorf("invalid disconnect_grace_minutes: %d", c.Chat.DisconnectGraceMinutes)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("invalid history_limit: %d", c.Chat.HistoryLimit)
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	// Upload defaults
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.MaxSizeMB <= 0 {
		c.Uploads.MaxSizeMB = 10
	}

	if env := os.Getenv("CHATBOT_ADMIN_TOKEN"); env != "" && c.Admin.AuthToken == "" {
		c.Admin.AuthToken = env
	}
	if c.Admin.AuthToken == "" {
		return fmt.Errorf("admin auth_token is required")
	}

	return nil
}

// validateProviders validates suggestion/bot provider settings and applies
// environment overrides for API keys.
func (c *Config) validateProviders() error {
	if env := os.Getenv("OPENAI_API_KEY"); env != "" && c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = env
	}
	if env := os.Getenv("GEMINI_API_KEY"); env != "" && c.Gemini.APIKey == "" {
		c.Gemini.APIKey = env
	}

	if c.Suggestions.Enabled {
		if err := validateProviderName("suggestions", c.Suggestions.Provider); err != nil {
			return err
		}
		if c.Suggestions.Model == "" {
			return fmt.Errorf("suggestions model is required when suggestions are enabled")
		}
		if c.Suggestions.Temperature < 0 || c.Suggestions.Temperature > 1 {
			return fmt.Errorf("invalid suggestions temperature: %f", c.Suggestions.Temperature)
		}
		if c.Suggestions.ContextSize == 0 {
			c.Suggestions.ContextSize = 10
		}
	}

	if c.Bot.Enabled {
		if err := validateProviderName("bot", c.Bot.Provider); err != nil {
			return err
		}
		if c.Bot.Model == "" {
			return fmt.Errorf("bot model is required when the bot is enabled")
		}
		if c.Bot.Temperature < 0 || c.Bot.Temperature > 1 {
			return fmt.Errorf("invalid bot temperature: %f", c.Bot.Temperature)
		}
		if c.Bot.Fallback == "" {
			c.Bot.Fallback = "Thanks for your message - a member of our team will get back to you shortly."
		}
		if c.Bot.ContextSize == 0 {
			c.Bot.ContextSize = 10
		}
		if c.Bot.TimeoutSecs == 0 {
			c.Bot.TimeoutSecs = 30
		}
	}

	// Missing keys disable the feature at runtime rather than failing startup
	if c.Suggestions.Enabled && c.providerKey(c.Suggestions.Provider) == "" {
		fmt.Printf("WARN: Suggestions are enabled but no %s API key provided - suggestion drafting will be disabled\n", c.Suggestions.Provider)
	}
	if c.Bot.Enabled && c.providerKey(c.Bot.Provider) == "" {
		fmt.Printf("WARN: Bot is enabled but no %s API key provided - automated replies will use the fallback text\n", c.Bot.Provider)
	}

	return nil
}

func validateProviderName(section, provider string) error {
	if provider != "openai" && provider != "gemini" {
		return fmt.Errorf("invalid %s provider: %q (must be 'openai' or 'gemini')", section, provider)
	}
	return nil
}

func (c *Config) providerKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAI.APIKey
	case "gemini":
		return c.Gemini.APIKey
	}
	return ""
}
