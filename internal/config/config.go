package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Molly server and CLI
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	NVD      NVDConfig      `mapstructure:"nvd"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ChatRateLimit int           `mapstructure:"chat_rate_limit"` // requests per minute per client
}

// DatabaseConfig holds the persistence configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ScannerConfig holds nmap invocation configuration
type ScannerConfig struct {
	Binary  string        `mapstructure:"binary"`
	Profile string        `mapstructure:"profile"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NVDConfig holds the vulnerability database client configuration
type NVDConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ResultsPerPage int           `mapstructure:"results_per_page"`
}

// OpenAIConfig holds the LLM client configuration
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReportsConfig holds PDF report output configuration
type ReportsConfig struct {
	Root string `mapstructure:"root"`
}

// AuthConfig holds the login credentials and session policy
type AuthConfig struct {
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Init initializes configuration from file, environment variables, and defaults.
// Configuration precedence: env vars > config file > defaults
func Init(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find home directory: %w", err)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".molly"))
		viper.AddConfigPath("/etc/molly")

		viper.SetConfigName(".molly")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MOLLY")
	viper.AutomaticEnv()

	viper.BindEnv("server.port", "MOLLY_SERVER_PORT")
	viper.BindEnv("database.path", "MOLLY_DATABASE_PATH")
	viper.BindEnv("scanner.binary", "MOLLY_SCANNER_BINARY")
	viper.BindEnv("scanner.timeout", "MOLLY_SCANNER_TIMEOUT")
	viper.BindEnv("nvd.api_key", "MOLLY_NVD_API_KEY")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.model", "MOLLY_OPENAI_MODEL")
	viper.BindEnv("reports.root", "MOLLY_REPORTS_ROOT")
	viper.BindEnv("auth.username", "MOLLY_AUTH_USERNAME")
	viper.BindEnv("auth.password", "MOLLY_AUTH_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; ignore error and use defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for all configuration options
func setDefaults() {
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15m") // chat requests block on scans
	viper.SetDefault("server.chat_rate_limit", 30)

	viper.SetDefault("database.path", "data/molly_scans.db")

	viper.SetDefault("scanner.binary", "nmap")
	viper.SetDefault("scanner.profile", "default_scan")
	viper.SetDefault("scanner.timeout", "10m")

	viper.SetDefault("nvd.api_key", "")
	viper.SetDefault("nvd.timeout", "10s")
	viper.SetDefault("nvd.results_per_page", 5)

	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.timeout", "60s")

	viper.SetDefault("reports.root", "instance/scans")

	viper.SetDefault("auth.username", "admin")
	viper.SetDefault("auth.password", "")
	viper.SetDefault("auth.session_ttl", "6h")
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server.port cannot be empty")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if cfg.Scanner.Timeout <= 0 {
		return fmt.Errorf("scanner.timeout must be positive")
	}
	if cfg.NVD.ResultsPerPage < 1 {
		return fmt.Errorf("nvd.results_per_page must be at least 1")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password must be set (MOLLY_AUTH_PASSWORD)")
	}
	return nil
}
