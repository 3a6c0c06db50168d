// Package config loads and validates the monitor's YAML configuration,
// with .env / environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Email        EmailConfig        `yaml:"email"`
	AI           AIConfig           `yaml:"ai"`
	Browser      BrowserConfig      `yaml:"browser"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Aggregation  AggregationConfig  `yaml:"aggregation"`
	Notification NotificationConfig `yaml:"notification"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency"`
	Report       ReportConfig       `yaml:"report"`
	Redis        RedisConfig        `yaml:"redis"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds MySQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds a go-sql-driver DSN. parseTime is required so DATETIME columns
// scan into time.Time; utf8mb4 matches the schema charset.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// EmailConfig holds IMAP access settings.
type EmailConfig struct {
	IMAPServer   string     `yaml:"imap_server"`
	IMAPPort     int        `yaml:"imap_port"`
	EmailAddress string     `yaml:"email_address"`
	AppPassword  string     `yaml:"app_password"`
	Mailbox      string     `yaml:"mailbox"`
	Rules        EmailRules `yaml:"rules"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// EmailRules filters which messages the poller handles.
type EmailRules struct {
	Sender         string `yaml:"sender"`
	SubjectPattern string `yaml:"subject_pattern"`
}

// Timeout returns the IMAP dial/IO timeout.
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AIConfig holds the LLM endpoint settings.
type AIConfig struct {
	APIURL         string  `yaml:"api_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
}

// Timeout returns the per-call LLM timeout.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BrowserConfig holds the page-render service settings.
type BrowserConfig struct {
	RenderURL      string `yaml:"render_url"`
	VendorDomain   string `yaml:"vendor_domain"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	MaxBodyBytes   int    `yaml:"max_body_bytes"`
}

// Timeout returns the per-page fetch timeout.
func (c BrowserConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RuntimeConfig holds scheduler cadence and logging.
type RuntimeConfig struct {
	CheckIntervalSeconds   int    `yaml:"check_interval"`
	RuleCompileMinutes     int    `yaml:"rule_compile_minutes"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	LogLevel               string `yaml:"log_level"`
}

// CheckInterval returns the pipeline tick interval.
func (c RuntimeConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// RuleCompileInterval returns the feedback-rule compile cadence.
func (c RuntimeConfig) RuleCompileInterval() time.Duration {
	return time.Duration(c.RuleCompileMinutes) * time.Minute
}

// ShutdownTimeout returns the graceful-drain deadline.
func (c RuntimeConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AggregationConfig controls event windowing and URL canonicalization.
type AggregationConfig struct {
	WindowHours    int      `yaml:"window_hours"`
	TrackingParams []string `yaml:"tracking_params"`
}

// Window returns the event aggregation window.
func (c AggregationConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// NotificationConfig holds outbound webhook settings and the manually
// managed suppress-keyword list.
type NotificationConfig struct {
	Webhooks         []string `yaml:"webhooks"`
	SuppressKeywords []string `yaml:"suppress_keywords"`
	MaxRetries       int      `yaml:"max_retries"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	Recipients       []string `yaml:"recipients"`
}

// Timeout returns the webhook POST timeout.
func (c NotificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FeedbackConfig holds signed feedback-link settings.
type FeedbackConfig struct {
	LinkBaseURL  string `yaml:"link_base_url"`
	LinkSecret   string `yaml:"link_secret"`
	LinkTTLHours int    `yaml:"link_ttl_hours"`

	RulePromoteThreshold int     `yaml:"rule_promote_threshold"`
	RulesMinConfidence   float64 `yaml:"rules_min_confidence"`
}

// LinkTTL returns the validity window of signed feedback URLs.
func (c FeedbackConfig) LinkTTL() time.Duration {
	return time.Duration(c.LinkTTLHours) * time.Hour
}

// ConcurrencyConfig bounds the pipeline worker pools.
type ConcurrencyConfig struct {
	PMail int `yaml:"p_mail"`
	PURL  int `yaml:"p_url"`
	PLLM  int `yaml:"p_llm"`
}

// ReportConfig holds report output settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// RedisConfig optionally backs the aggregation lock with redis so multiple
// processes can serialize on the same event key. Empty Addr means the
// in-process keyed mutex is used.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and parses the configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "127.0.0.1"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "root"
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = "mail_check"
	}
	if cfg.Email.IMAPPort == 0 {
		cfg.Email.IMAPPort = 993
	}
	if cfg.Email.Mailbox == "" {
		cfg.Email.Mailbox = "INBOX"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 2
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 500
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.3
	}
	if cfg.Browser.TimeoutSeconds == 0 {
		cfg.Browser.TimeoutSeconds = 20
	}
	if cfg.Browser.MaxRetries == 0 {
		cfg.Browser.MaxRetries = 2
	}
	if cfg.Browser.MaxBodyBytes == 0 {
		cfg.Browser.MaxBodyBytes = 20000
	}
	if cfg.Runtime.CheckIntervalSeconds == 0 {
		cfg.Runtime.CheckIntervalSeconds = 300
	}
	if cfg.Runtime.RuleCompileMinutes == 0 {
		cfg.Runtime.RuleCompileMinutes = 30
	}
	if cfg.Runtime.ShutdownTimeoutSeconds == 0 {
		cfg.Runtime.ShutdownTimeoutSeconds = 30
	}
	if cfg.Runtime.LogLevel == "" {
		cfg.Runtime.LogLevel = "INFO"
	}
	if cfg.Aggregation.WindowHours == 0 {
		cfg.Aggregation.WindowHours = 72
	}
	if len(cfg.Aggregation.TrackingParams) == 0 {
		cfg.Aggregation.TrackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "spm", "from"}
	}
	if cfg.Notification.MaxRetries == 0 {
		cfg.Notification.MaxRetries = 3
	}
	if cfg.Notification.TimeoutSeconds == 0 {
		cfg.Notification.TimeoutSeconds = 10
	}
	if len(cfg.Notification.Recipients) == 0 {
		cfg.Notification.Recipients = []string{"@all"}
	}
	if cfg.Feedback.LinkTTLHours == 0 {
		cfg.Feedback.LinkTTLHours = 168
	}
	if cfg.Feedback.RulePromoteThreshold == 0 {
		cfg.Feedback.RulePromoteThreshold = 3
	}
	if cfg.Feedback.RulesMinConfidence == 0 {
		cfg.Feedback.RulesMinConfidence = 0.7
	}
	if cfg.Concurrency.PMail == 0 {
		cfg.Concurrency.PMail = 2
	}
	if cfg.Concurrency.PURL == 0 {
		cfg.Concurrency.PURL = 4
	}
	if cfg.Concurrency.PLLM == 0 {
		cfg.Concurrency.PLLM = 4
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "data/reports"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("IMAP_SERVER"); v != "" {
		cfg.Email.IMAPServer = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Email.IMAPPort = p
		}
	}
	if v := os.Getenv("EMAIL_ADDRESS"); v != "" {
		cfg.Email.EmailAddress = v
	}
	if v := os.Getenv("EMAIL_APP_PASSWORD"); v != "" {
		cfg.Email.AppPassword = v
	}
	if v := os.Getenv("AI_API_URL"); v != "" {
		cfg.AI.APIURL = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FEEDBACK_LINK_SECRET"); v != "" {
		cfg.Feedback.LinkSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg, nil
}

// Validate checks that everything the pipeline needs before starting is
// present. A failed validation must abort startup; the pipeline never
// starts partially configured.
func (c *Config) Validate() error {
	if c.Email.IMAPServer == "" {
		return fmt.Errorf("config: email.imap_server is required")
	}
	if c.Email.EmailAddress == "" {
		return fmt.Errorf("config: email.email_address is required")
	}
	if c.Email.AppPassword == "" {
		return fmt.Errorf("config: email.app_password is required")
	}
	if c.Email.Rules.Sender == "" {
		return fmt.Errorf("config: email.rules.sender is required")
	}
	if c.AI.APIURL == "" {
		return fmt.Errorf("config: ai.api_url is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("config: ai.model is required")
	}
	if c.Feedback.LinkSecret == "" {
		return fmt.Errorf("config: feedback.link_secret is required")
	}
	if c.Browser.VendorDomain == "" {
		return fmt.Errorf("config: browser.vendor_domain is required")
	}
	return nil
}
