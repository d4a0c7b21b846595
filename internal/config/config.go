package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable that points at an optional YAML config file.
const ConfigFileEnv = "PATENTGPT_CONFIG"

var (
	ErrMissingEPOClientID     = errors.New("EPO_CLIENT_ID is required")
	ErrMissingEPOClientSecret = errors.New("EPO_CLIENT_SECRET is required")
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	EPO       EPOConfig       `mapstructure:"epo"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"readtimeout"`
	WriteTimeout    time.Duration `mapstructure:"writetimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdowntimeout"`
	TrustProxy      bool          `mapstructure:"trustproxy"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type EPOConfig struct {
	ClientID          string        `mapstructure:"clientid"`
	ClientSecret      string        `mapstructure:"clientsecret"`
	BaseURL           string        `mapstructure:"baseurl"`
	AuthURL           string        `mapstructure:"authurl"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requestspersecond"`
	Burst             int           `mapstructure:"burst"`
	RetryAttempts     int           `mapstructure:"retryattempts"`
}

type OpenAIConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"apikey"`
	APIEndpoint string `mapstructure:"endpoint"`
	APIVersion  string `mapstructure:"apiversion"`
	Model       string `mapstructure:"model"`
}

type AnalysisConfig struct {
	MaxSteps int           `mapstructure:"maxsteps"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type setting struct {
	key      string
	env      string
	fallback interface{}
}

var settings = []setting{
	{"server.port", "PORT", "3000"},
	{"server.host", "SERVER_HOST", ""},
	{"server.readtimeout", "SERVER_READ_TIMEOUT", "30s"},
	{"server.writetimeout", "SERVER_WRITE_TIMEOUT", "0s"},
	{"server.shutdowntimeout", "SERVER_SHUTDOWN_TIMEOUT", "30s"},
	{"server.trustproxy", "SERVER_TRUST_PROXY", false},

	{"ratelimit.requests", "RATE_LIMIT_REQUESTS", 100},
	{"ratelimit.window", "RATE_LIMIT_WINDOW", "15m"},

	{"epo.clientid", "EPO_CLIENT_ID", ""},
	{"epo.clientsecret", "EPO_CLIENT_SECRET", ""},
	{"epo.baseurl", "EPO_BASE_URL", "https://ops.epo.org/3.2/rest-services"},
	{"epo.authurl", "EPO_AUTH_URL", "https://ops.epo.org/3.2/auth/accesstoken"},
	{"epo.timeout", "EPO_TIMEOUT", "30s"},
	{"epo.requestspersecond", "EPO_REQUESTS_PER_SECOND", 1.0},
	{"epo.burst", "EPO_BURST", 5},
	{"epo.retryattempts", "EPO_RETRY_ATTEMPTS", 2},

	{"openai.provider", "OPENAI_PROVIDER", "openai"},
	{"openai.apikey", "OPENAI_API_KEY", ""},
	{"openai.endpoint", "OPENAI_ENDPOINT", ""},
	{"openai.apiversion", "OPENAI_API_VERSION", "2024-06-01"},
	{"openai.model", "OPENAI_MODEL", "gpt-4o"},

	{"analysis.maxsteps", "ANALYSIS_MAX_STEPS", 5},
	{"analysis.timeout", "ANALYSIS_TIMEOUT", "2m"},

	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "text"},
}

// LoadConfig reads configuration from the environment and, when PATENTGPT_CONFIG
// is set, from a YAML file. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	v := viper.New()

	for _, s := range settings {
		v.SetDefault(s.key, s.fallback)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded successfully")
	return &cfg, nil
}

// Validate checks required credentials and normalizes values that have a safe floor.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.EPO.ClientID) == "" {
		errs = append(errs, ErrMissingEPOClientID)
	}
	if strings.TrimSpace(c.EPO.ClientSecret) == "" {
		errs = append(errs, ErrMissingEPOClientSecret)
	}
	if c.RateLimit.Requests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimit.Requests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window))
	}
	switch c.OpenAI.Provider {
	case "openai", "azure":
	default:
		errs = append(errs, fmt.Errorf("unsupported OPENAI_PROVIDER %q", c.OpenAI.Provider))
	}
	if c.OpenAI.Provider == "azure" && c.OpenAI.APIEndpoint == "" {
		errs = append(errs, errors.New("OPENAI_ENDPOINT is required for the azure provider"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if c.Analysis.MaxSteps <= 0 {
		c.Analysis.MaxSteps = 1
	}
	if c.EPO.Burst <= 0 {
		c.EPO.Burst = 1
	}
	if c.EPO.RetryAttempts <= 0 {
		c.EPO.RetryAttempts = 1
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
