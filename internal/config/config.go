package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Log        LogConfig
	Memory     MemoryConfig
	Embed      EmbedConfig
	Vector     VectorConfig
	LLM        LLMConfig
	Prompts    PromptsConfig
	Chat       ChatConfig
	Ingest     IngestConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Driver         string
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	SQLitePath     string
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig points at the JetStream server. With Disabled set the chat
// runs over HTTP only and audit events go straight to the store.
type NATSConfig struct {
	URL      string
	Disabled bool
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

// EncryptionConfig holds the optional at-rest key for chat history.
// An empty key stores turns in plain text.
type EncryptionConfig struct {
	Key string
}

type LogConfig struct {
	Level  string
	Format string
}

// MemoryConfig tunes the short-term and long-term stores.
type MemoryConfig struct {
	TokenBudget      int
	MaxMessages      int
	FallbackMessages int
	TopK             int
	Retention        int
	TTL              time.Duration
	FactsLimit       int
}

type EmbedConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	CacheSize  int64
}

type VectorConfig struct {
	Backend string
	Dir     string
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Retries     int
}

// PromptsConfig holds the system instruction for each reply mode.
type PromptsConfig struct {
	Default      string
	Concise      string
	Friendly     string
	Expert       string
	BengaliFirst string
}

type ChatConfig struct {
	ApologyText        string
	BusyText           string
	RateLimitPerMinute int
	MaxConcurrency     int
}

// IngestConfig sizes file chunks in tokens.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type RateLimitConfig struct {
	HTTPRequests      int
	HTTPWindowSeconds int
}

const (
	defaultPrompt = "You are a personal assistant replying on behalf of your owner while they are offline. " +
		"Be helpful and honest, keep answers short, and never promise anything on the owner's behalf."
	concisePrompt = "You reply on behalf of your owner while they are offline. Answer in as few words as possible."
	friendlyPrompt = "You reply on behalf of your owner while they are offline. Be warm, casual and encouraging."
	expertPrompt   = "You reply on behalf of your owner while they are offline. Give precise, technically detailed answers " +
		"and point out assumptions and trade-offs."
	bengaliPrompt = "You reply on behalf of your owner while they are offline. Reply in Bengali unless the user " +
		"clearly writes in another language."

	defaultApology = "Sorry, I couldn't come up with a reply right now. Please try again in a moment."
	defaultBusy    = "You're sending messages faster than I can read them. Give me a minute."
)

// Load reads configuration from an optional .env file and the environment.
// Environment variables override values from the file. An empty envFile
// means ".env" in the working directory.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(envFile), dotenv.ParserEnv("", ".", keyMapper))

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", keyMapper), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: splitList(k.String("server.cors.origins")),
		},
		DB: DBConfig{
			Driver:         k.String("db.driver"),
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			SQLitePath:     k.String("db.sqlite.path"),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:      k.String("nats.url"),
			Disabled: k.Bool("nats.disabled"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Memory: MemoryConfig{
			TokenBudget:      k.Int("memory.token.budget"),
			MaxMessages:      k.Int("memory.max.messages"),
			FallbackMessages: k.Int("memory.fallback.messages"),
			TopK:             k.Int("memory.top.k"),
			Retention:        k.Int("memory.retention"),
			FactsLimit:       k.Int("memory.facts.limit"),
		},
		Embed: EmbedConfig{
			Provider:   k.String("embed.provider"),
			Model:      k.String("embed.model"),
			BaseURL:    k.String("embed.base.url"),
			APIKey:     k.String("embed.api.key"),
			Dimensions: k.Int("embed.dimensions"),
			CacheSize:  k.Int64("embed.cache.size"),
		},
		Vector: VectorConfig{
			Backend: k.String("vector.backend"),
			Dir:     k.String("vector.dir"),
		},
		LLM: LLMConfig{
			Provider:    k.String("llm.provider"),
			BaseURL:     k.String("llm.base.url"),
			APIKey:      k.String("llm.api.key"),
			Model:       k.String("llm.model"),
			MaxTokens:   k.Int("llm.max.tokens"),
			Temperature: float32(k.Float64("llm.temperature")),
			Retries:     k.Int("llm.retries"),
		},
		Prompts: PromptsConfig{
			Default:      k.String("prompts.default"),
			Concise:      k.String("prompts.concise"),
			Friendly:     k.String("prompts.friendly"),
			Expert:       k.String("prompts.expert"),
			BengaliFirst: k.String("prompts.bengali.first"),
		},
		Chat: ChatConfig{
			ApologyText:        k.String("chat.apology.text"),
			BusyText:           k.String("chat.busy.text"),
			RateLimitPerMinute: k.Int("chat.rate.limit.per.minute"),
			MaxConcurrency:     k.Int("chat.max.concurrency"),
		},
		Ingest: IngestConfig{
			ChunkSize:    k.Int("ingest.chunk.size"),
			ChunkOverlap: k.Int("ingest.chunk.overlap"),
		},
		RateLimit: RateLimitConfig{
			HTTPRequests:      k.Int("ratelimit.http.requests"),
			HTTPWindowSeconds: k.Int("ratelimit.http.window.seconds"),
		},
	}

	applyDefaults(cfg, k)

	// Parse durations
	expStr := k.String("jwt.expiry")
	if expStr == "" {
		expStr = "720h"
	}
	cfg.JWT.Expiry, err = time.ParseDuration(expStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt expiry: %w", err)
	}

	if ttl := k.String("memory.ttl"); ttl != "" {
		cfg.Memory.TTL, err = time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("parsing memory ttl: %w", err)
		}
	}

	return cfg, nil
}

func keyMapper(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDefaults(cfg *Config, k *koanf.Koanf) {
	setString(&cfg.Server.Host, "0.0.0.0")
	setInt(&cfg.Server.Port, 8080)

	setString(&cfg.DB.Driver, "postgres")
	setString(&cfg.DB.Host, "localhost")
	setInt(&cfg.DB.Port, 5432)
	setString(&cfg.DB.User, "awaybot")
	setString(&cfg.DB.Name, "awaybot")
	setString(&cfg.DB.SSLMode, "disable")
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	setString(&cfg.DB.SQLitePath, "awaybot.db")
	setString(&cfg.DB.MigrationsPath, "migrations")

	setString(&cfg.Redis.Host, "localhost")
	setInt(&cfg.Redis.Port, 6379)
	setString(&cfg.NATS.URL, "nats://localhost:4222")

	setString(&cfg.Log.Level, "info")
	setString(&cfg.Log.Format, "json")

	setInt(&cfg.Memory.TokenBudget, 6000)
	setInt(&cfg.Memory.MaxMessages, 40)
	setInt(&cfg.Memory.FallbackMessages, 10)
	setInt(&cfg.Memory.TopK, 5)
	setInt(&cfg.Memory.Retention, 1000)
	setInt(&cfg.Memory.FactsLimit, 10)

	setString(&cfg.Embed.Provider, "hash")
	setInt(&cfg.Embed.Dimensions, 384)
	if cfg.Embed.CacheSize == 0 {
		cfg.Embed.CacheSize = 10000
	}
	setString(&cfg.Vector.Backend, "chromem")

	setInt(&cfg.Ingest.ChunkSize, 1000)
	if !k.Exists("ingest.chunk.overlap") {
		cfg.Ingest.ChunkOverlap = 100
	}

	setString(&cfg.LLM.Provider, "openai")
	setString(&cfg.LLM.Model, "gpt-4o-mini")
	setInt(&cfg.LLM.MaxTokens, 800)
	if !k.Exists("llm.temperature") {
		cfg.LLM.Temperature = 0.7
	}
	setInt(&cfg.LLM.Retries, 3)

	setString(&cfg.Prompts.Default, defaultPrompt)
	setString(&cfg.Prompts.Concise, concisePrompt)
	setString(&cfg.Prompts.Friendly, friendlyPrompt)
	setString(&cfg.Prompts.Expert, expertPrompt)
	setString(&cfg.Prompts.BengaliFirst, bengaliPrompt)

	setString(&cfg.Chat.ApologyText, defaultApology)
	setString(&cfg.Chat.BusyText, defaultBusy)
	setInt(&cfg.Chat.RateLimitPerMinute, 20)
	setInt(&cfg.Chat.MaxConcurrency, 16)

	setInt(&cfg.RateLimit.HTTPRequests, 100)
	setInt(&cfg.RateLimit.HTTPWindowSeconds, 60)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
