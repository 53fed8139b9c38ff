package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the docpilot service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dify      DifyConfig      `mapstructure:"dify"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Session   SessionConfig   `mapstructure:"session"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Listen     string        `mapstructure:"listen"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Env        string        `mapstructure:"env"` // development or production
}

// DatabasesConfig groups the backing stores
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the relational store connection
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the redis connection used for activity markers and scheduler locks
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// StorageConfig controls the on-disk document store
type StorageConfig struct {
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	CleanupCron    string `mapstructure:"cleanup_cron"`
}

// DifyConfig points at the upstream AI workflow API
type DifyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (d DifyConfig) Validate() error {
	if strings.TrimSpace(d.BaseURL) == "" {
		return fmt.Errorf("dify.base_url is required")
	}
	if strings.TrimSpace(d.APIKey) == "" {
		return fmt.Errorf("dify.api_key is required")
	}
	return nil
}

// OCRConfig controls extraction orchestration
type OCRConfig struct {
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	CallbackBaseURL string        `mapstructure:"callback_base_url"`
	StuckAfter      time.Duration `mapstructure:"stuck_after"`
}

// SessionConfig allows overriding the activity profile chosen by server.env
type SessionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	WarningWindow time.Duration `mapstructure:"warning_window"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// LoadConfig reads configuration from file and environment (DOCPILOT_*).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.session_ttl", "24h")
	viper.SetDefault("server.env", "production")
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.max_upload_bytes", int64(25<<20))
	viper.SetDefault("storage.cleanup_cron", "@daily")
	viper.SetDefault("dify.timeout", "120s")
	viper.SetDefault("ocr.token_ttl", "10m")
	viper.SetDefault("ocr.stuck_after", "30m")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional when everything comes from env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}
