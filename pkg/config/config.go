// Package config loads bot settings from an optional YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// EnvPrefix namespaces the automatic environment bindings (LATTICE_LOG_LEVEL, ...).
const EnvPrefix = "LATTICE"

// Config holds all configuration for the bot.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Media     MediaConfig     `mapstructure:"media"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DiscordConfig contains gateway credentials and channel routing.
type DiscordConfig struct {
	Token           string        `mapstructure:"token"`
	Prefix          string        `mapstructure:"prefix"`
	BotTestingChan  string        `mapstructure:"bot_testing_channel"`
	ExpChannel      string        `mapstructure:"exp_channel"`
	HomeChannel     string        `mapstructure:"home_channel"`
	RelayChannel    string        `mapstructure:"relay_channel"`
	RoastTargets    []string      `mapstructure:"roast_targets"`
	LoadingFrames   int           `mapstructure:"loading_frames"`
	WelcomeMessages bool          `mapstructure:"welcome_messages"`
	Workers         int           `mapstructure:"workers"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
}

// RestrictedChannels returns the allowed command channels, or nil when
// any of them is unset and commands are allowed everywhere.
func (d DiscordConfig) RestrictedChannels() []string {
	chans := []string{d.BotTestingChan, d.ExpChannel, d.HomeChannel}
	for _, c := range chans {
		if c == "" || c == "0" {
			return nil
		}
	}
	return chans
}

type AgentConfig struct {
	Temperature     float64 `mapstructure:"temperature"`
	MaxHistory      int     `mapstructure:"max_history"`
	MaxToolCalls    int     `mapstructure:"max_tool_calls"`
	RecursionLimit  int     `mapstructure:"recursion_limit"`
	ToolConcurrency int     `mapstructure:"tool_concurrency"`
}

// ProviderConfig is one LLM backend. Providers without an API key are
// skipped, except ollama which only needs models.
type ProviderConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url"`
	Models  []string `mapstructure:"models"`
}

type ProvidersConfig struct {
	Gemini    ProviderConfig `mapstructure:"gemini"`
	Groq      ProviderConfig `mapstructure:"groq"`
	A4F       ProviderConfig `mapstructure:"a4f"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Ollama    ProviderConfig `mapstructure:"ollama"`
}

type ToolsConfig struct {
	TavilyAPIKey  string        `mapstructure:"tavily_api_key"`
	SenderEmail   string        `mapstructure:"sender_email"`
	EmailPassword string        `mapstructure:"email_password"`
	CacheSize     int           `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type MediaConfig struct {
	Dir              string `mapstructure:"dir"`
	GeminiImageModel string `mapstructure:"gemini_image_model"`
	ElevenLabsAPIKey string `mapstructure:"elevenlabs_api_key"`
	BFLAPIKey        string `mapstructure:"bfl_api_key"`
}

// StorageConfig selects the checkpoint backend and the local databases.
type StorageConfig struct {
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	CounterDB  string           `mapstructure:"counter_db"`
	RedisURL   string           `mapstructure:"redis_url"`
}

type CheckpointConfig struct {
	Driver   string        `mapstructure:"driver"`
	DSN      string        `mapstructure:"dsn"`
	Database string        `mapstructure:"database"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Address       string `mapstructure:"address"`
	ExposeHistory bool   `mapstructure:"expose_history"`
}

// legacyEnv maps config keys onto the variable names the bot has always
// been deployed with. The prefixed name is tried first.
var legacyEnv = map[string][]string{
	"discord.token":               {"DISCORD_TOKEN", "AHD_DISCORD_TOKEN"},
	"discord.bot_testing_channel": {"CHANNEL_ID_BOT_TESTING"},
	"discord.exp_channel":         {"CHANNEL_ID_EXP"},
	"discord.home_channel":        {"AHD_CHANNEL_ID"},
	"discord.relay_channel":       {"AHD_MINECRAFT_CHANNEL_ID"},
	"discord.roast_targets":       {"ROAST_USER_IDS"},
	"providers.gemini.api_key":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"providers.groq.api_key":      {"GROQ_API_KEY"},
	"providers.a4f.api_key":       {"A4F_API_KEY", "OPENAI_API_KEY"},
	"providers.anthropic.api_key": {"ANTHROPIC_API_KEY"},
	"providers.ollama.base_url":   {"OLLAMA_HOST"},
	"tools.tavily_api_key":        {"TAVILY_API_KEY"},
	"tools.sender_email":          {"SENDER_EMAIL"},
	"tools.email_password":        {"EMAIL_PASSWORD"},
	"media.elevenlabs_api_key":    {"ELEVENLABS_API_KEY"},
	"media.bfl_api_key":           {"BFL_API_KEY"},
	"storage.redis_url":           {"REDIS_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("discord.prefix", "!")
	v.SetDefault("discord.loading_frames", 10)
	v.SetDefault("discord.welcome_messages", true)
	v.SetDefault("discord.workers", 8)
	v.SetDefault("discord.command_timeout", 10*time.Minute)

	v.SetDefault("agent.temperature", 1.0)
	v.SetDefault("agent.max_history", 10)
	v.SetDefault("agent.max_tool_calls", 2)
	v.SetDefault("agent.recursion_limit", 8)
	v.SetDefault("agent.tool_concurrency", 4)

	v.SetDefault("providers.gemini.models", []string{"gemini-2.0-flash"})
	v.SetDefault("providers.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("providers.groq.models", []string{
		"llama-3.3-70b-versatile",
		"meta-llama/llama-4-maverick-17b-128e-instruct",
		"meta-llama/llama-4-scout-17b-16e-instruct",
		"qwen-qwq-32b",
	})
	v.SetDefault("providers.a4f.base_url", "https://api.a4f.co/v1")
	v.SetDefault("providers.a4f.models", []string{
		"provider-4/gpt-4.1",
		"provider-4/gpt-4.1-mini",
		"provider-4/gpt-4o",
		"provider-4/claude-3.7-sonnet",
		"provider-2/mistral-large",
	})
	v.SetDefault("providers.anthropic.models", []string{"claude-3-5-haiku-latest"})
	v.SetDefault("providers.ollama.models", []string{})

	v.SetDefault("tools.cache_size", 128)
	v.SetDefault("tools.cache_ttl", 10*time.Minute)

	v.SetDefault("media.dir", "data")
	v.SetDefault("media.gemini_image_model", "gemini-2.0-flash-preview-image-generation")

	v.SetDefault("storage.checkpoint.driver", "sqlite")
	v.SetDefault("storage.checkpoint.dsn", "db/checkpoint.sqlite")
	v.SetDefault("storage.checkpoint.database", "lattice_discord")
	v.SetDefault("storage.checkpoint.ttl", time.Duration(0))
	v.SetDefault("storage.counter_db", "db/word_count.db")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("server.expose_history", false)
}

// Load reads .env (if present), then the YAML file at path, or config.yaml
// from ./config or the working directory when path is empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LLMProviders converts the provider section into selector inputs, in a
// fixed order so logs are stable.
func (c *Config) LLMProviders() []models.ProviderConfig {
	p := c.Providers
	return []models.ProviderConfig{
		{Name: "gemini", Kind: "gemini", APIKey: p.Gemini.APIKey, BaseURL: p.Gemini.BaseURL, Models: p.Gemini.Models},
		{Name: "groq", Kind: "groq", APIKey: p.Groq.APIKey, BaseURL: p.Groq.BaseURL, Models: p.Groq.Models},
		{Name: "a4f", Kind: "a4f", APIKey: p.A4F.APIKey, BaseURL: p.A4F.BaseURL, Models: p.A4F.Models},
		{Name: "anthropic", Kind: "anthropic", APIKey: p.Anthropic.APIKey, BaseURL: p.Anthropic.BaseURL, Models: p.Anthropic.Models},
		{Name: "ollama", Kind: "ollama", BaseURL: p.Ollama.BaseURL, Models: p.Ollama.Models},
	}
}

// ValidateLLM requires at least one usable model provider.
func (c *Config) ValidateLLM() error {
	p := c.Providers
	if p.Gemini.APIKey == "" && p.Groq.APIKey == "" && p.A4F.APIKey == "" &&
		p.Anthropic.APIKey == "" && len(p.Ollama.Models) == 0 {
		return errors.New("no LLM provider configured: set GOOGLE_API_KEY, GROQ_API_KEY, A4F_API_KEY, ANTHROPIC_API_KEY or providers.ollama.models")
	}
	if c.Agent.MaxToolCalls < 0 {
		return errors.New("agent.max_tool_calls must not be negative")
	}
	return nil
}

// Validate reports everything the bot needs before connecting to Discord.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Discord.Token) == "" {
		errs = append(errs, errors.New("discord token is required (DISCORD_TOKEN)"))
	}
	if strings.TrimSpace(c.Discord.Prefix) == "" {
		errs = append(errs, errors.New("discord.prefix must not be empty"))
	}
	if err := c.ValidateLLM(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Enabled && c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required when the server is enabled"))
	}
	return errors.Join(errs...)
}

// EnsureDirs creates the local directories used by file-backed stores.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Media.Dir, "db"} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
