package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	AnalysisTTL time.Duration `mapstructure:"analysis_ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// GeminiConfig carries the credential and model names for both remote
// clients. An empty APIKey is not fatal at boot; every remote call will
// then fail at the authorization stage and be surfaced as a credential
// error to the user.
type GeminiConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	AnalysisModel string        `mapstructure:"analysis_model"`
	ImageModel    string        `mapstructure:"image_model"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTAudience string `mapstructure:"jwt_audience"`
}

// Load reads the YAML config at configPath, applying defaults and
// GREG_-prefixed environment overrides (GREG_GEMINI_API_KEY etc).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("GREG")
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New loads config.yaml from the working directory, falling back to
// defaults plus environment overrides when the file is absent.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return fromEnvOnly()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.dsn", "host=postgres user=postgres password=postgres dbname=hairstyle port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.analysis_ttl", time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/webp"})

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.analysis_model", "gemini-2.5-flash")
	v.SetDefault("gemini.image_model", "gemini-2.5-flash-image-preview")
	v.SetDefault("gemini.call_timeout", 2*time.Minute)

	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("auth.jwt_audience", "")
}

func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.port", "server.mode",
		"database.dsn",
		"redis.addr", "redis.password",
		"gemini.api_key", "gemini.analysis_model", "gemini.image_model",
		"auth.jwt_secret", "auth.jwt_audience",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func fromEnvOnly() *Config {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GREG")
	v.AutomaticEnv()
	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal failed: %v", err))
	}
	return &cfg
}
