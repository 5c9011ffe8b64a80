package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPServer struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

type DbServer struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	Name     string `mapstructure:"name"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (config *DbServer) GetConnectionStr() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable pool_max_conns=10",
		config.User, config.Pass, config.Host, config.Port, config.Name,
	)
}

type Pipeline struct {
	UpdateIntervalSeconds int `mapstructure:"update_interval_seconds"`
	MaxCacheAgeSeconds    int `mapstructure:"max_cache_age_seconds"`
}

func (p Pipeline) UpdateInterval() time.Duration {
	return time.Duration(p.UpdateIntervalSeconds) * time.Second
}

// MaxCacheAge bounds how stale a last-known-good entry may be before it is
// refused. Zero keeps entries forever.
func (p Pipeline) MaxCacheAge() time.Duration {
	return time.Duration(p.MaxCacheAgeSeconds) * time.Second
}

type Output struct {
	Path     string `mapstructure:"path"`
	Validate bool   `mapstructure:"validate"`
}

type Network struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	RetryBaseDelayMs int     `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs  int     `mapstructure:"retry_max_delay_ms"`
	CallsPerSecond   float64 `mapstructure:"calls_per_second"`
	UserAgent        string  `mapstructure:"user_agent"`
}

func (n Network) Timeout() time.Duration { return time.Duration(n.TimeoutSeconds) * time.Second }

func (n Network) RetryBaseDelay() time.Duration {
	return time.Duration(n.RetryBaseDelayMs) * time.Millisecond
}

func (n Network) RetryMaxDelay() time.Duration {
	return time.Duration(n.RetryMaxDelayMs) * time.Millisecond
}

// Defaults fill optional feed fields when a source omits them.
type Defaults struct {
	Amount    string `mapstructure:"amount"`
	MinAmount string `mapstructure:"min_amount"`
	MaxAmount string `mapstructure:"max_amount"`
	Param     string `mapstructure:"param"`
}

type Source struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type Logging struct {
	Level string `mapstructure:"level"`
}

type AppConfig struct {
	HTTPServer HTTPServer `mapstructure:"http_server"`
	DbServer   DbServer   `mapstructure:"db_server"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Output     Output     `mapstructure:"output"`
	Network    Network    `mapstructure:"network"`
	Defaults   Defaults   `mapstructure:"defaults"`
	Sources    []Source   `mapstructure:"sources"`
	Logging    Logging    `mapstructure:"logging"`
}

func Init() (*AppConfig, error) {
	var cfg AppConfig

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	viper.SetConfigFile("config.yaml")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	viper.SetDefault("http_server.enabled", true)
	viper.SetDefault("http_server.port", "8080")
	viper.SetDefault("db_server.enabled", false)
	viper.SetDefault("db_server.max_conns", 10)
	viper.SetDefault("pipeline.update_interval_seconds", 30)
	viper.SetDefault("pipeline.max_cache_age_seconds", 0)
	viper.SetDefault("output.path", "./request-exportxml.xml")
	viper.SetDefault("output.validate", true)
	viper.SetDefault("network.timeout_seconds", 30)
	viper.SetDefault("network.max_retries", 3)
	viper.SetDefault("network.retry_base_delay_ms", 1000)
	viper.SetDefault("network.retry_max_delay_ms", 30000)
	viper.SetDefault("network.calls_per_second", 5.0)
	viper.SetDefault("network.user_agent", "ratefeed/1.0")
	viper.SetDefault("defaults.amount", "0")
	viper.SetDefault("defaults.min_amount", "0")
	viper.SetDefault("defaults.max_amount", "999999999")
	viper.SetDefault("defaults.param", "0")
	viper.SetDefault("logging.level", "info")

	// http server env vars
	_ = viper.BindEnv("http_server.enabled", "HTTP_ENABLED")
	_ = viper.BindEnv("http_server.port", "HTTP_PORT")

	// db server env vars
	_ = viper.BindEnv("db_server.enabled", "DB_ENABLED")
	_ = viper.BindEnv("db_server.host", "DB_HOST")
	_ = viper.BindEnv("db_server.port", "DB_PORT")
	_ = viper.BindEnv("db_server.user", "DB_USER")
	_ = viper.BindEnv("db_server.pass", "DB_PASS")
	_ = viper.BindEnv("db_server.name", "DB_NAME")
	_ = viper.BindEnv("db_server.max_conns", "DB_MAX_CONNS")

	// pipeline env vars
	_ = viper.BindEnv("pipeline.update_interval_seconds", "UPDATE_INTERVAL_SECONDS")
	_ = viper.BindEnv("pipeline.max_cache_age_seconds", "MAX_CACHE_AGE_SECONDS")
	_ = viper.BindEnv("output.path", "OUTPUT_PATH")
	_ = viper.BindEnv("output.validate", "VALIDATE_OUTPUT")

	// network env vars
	_ = viper.BindEnv("network.timeout_seconds", "NETWORK_TIMEOUT_SECONDS")
	_ = viper.BindEnv("network.max_retries", "NETWORK_MAX_RETRIES")
	_ = viper.BindEnv("network.retry_base_delay_ms", "NETWORK_RETRY_BASE_DELAY_MS")
	_ = viper.BindEnv("network.retry_max_delay_ms", "NETWORK_RETRY_MAX_DELAY_MS")
	_ = viper.BindEnv("network.calls_per_second", "NETWORK_CALLS_PER_SECOND")
	_ = viper.BindEnv("network.user_agent", "USER_AGENT")

	_ = viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &cfg, nil
}
