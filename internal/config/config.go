package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
)

// Config is the dispatch API server configuration.
type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RedisURL           string `env:"REDIS_URL"`
	SMSAPIURL          string `env:"SMS_API_URL,default=https://api.sms.net.bd/sendsms"`
	SMSBalanceURL      string `env:"SMS_BALANCE_URL,default=https://api.sms.net.bd/user/balance/"`
	SMSAPIKey          string `env:"SMS_API_KEY"`
	SMSSenderID        string `env:"SMS_SENDER_ID"`
	SMSDryRun          bool   `env:"SMS_DRY_RUN,default=false"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	SendConcurrency    int    `env:"SEND_CONCURRENCY,default=8"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	APITokens          string `env:"API_TOKENS,required=true"`
	CORSOrigins        string `env:"CORS_ORIGINS,default=http://localhost:3000"`

	Numbers NumberConfig
}

// NumberConfig is shared by both binaries so they extract and normalize alike.
type NumberConfig struct {
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE,default=880"`
	MinNumberLength    int    `env:"MIN_NUMBER_LENGTH,default=11"`
	StudentPhoneField  string `env:"STUDENT_PHONE_FIELD,default=Student Phone No"`
	GuardianPhoneField string `env:"GUARDIAN_PHONE_FIELD,default=Guardian Phone No"`
	MessageField       string `env:"MESSAGE_FIELD,default=Result"`
}

func (n NumberConfig) FieldMapping() recipient.FieldMapping {
	return recipient.FieldMapping{
		Student:  strings.TrimSpace(n.StudentPhoneField),
		Guardian: strings.TrimSpace(n.GuardianPhoneField),
		Message:  strings.TrimSpace(n.MessageField),
	}
}

func (n NumberConfig) Normalizer() recipient.Normalizer {
	return recipient.NewNormalizer(n.DefaultCountryCode, n.MinNumberLength)
}

func (n NumberConfig) validate() error {
	code := strings.TrimSpace(n.DefaultCountryCode)
	if code == "" {
		return fmt.Errorf("DEFAULT_COUNTRY_CODE is required")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("DEFAULT_COUNTRY_CODE must be digits, got %q", n.DefaultCountryCode)
		}
	}
	if n.MinNumberLength < 1 || n.MinNumberLength > 15 {
		return fmt.Errorf("MIN_NUMBER_LENGTH must be between 1 and 15")
	}
	return n.FieldMapping().Validate()
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Tokens()) == 0 {
		return fmt.Errorf("API_TOKENS must list at least one token")
	}
	if c.RateLimitPerSec <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SEC must be positive")
	}
	if c.SendConcurrency <= 0 {
		return fmt.Errorf("SEND_CONCURRENCY must be positive")
	}
	return c.Numbers.validate()
}

// Tokens returns the accepted bearer tokens.
func (c *Config) Tokens() []string {
	return splitList(c.APITokens)
}

func (c *Config) AllowedOrigins() string {
	return strings.Join(splitList(c.CORSOrigins), ",")
}

// UseDryRun reports whether messages should bypass the real gateway.
func (c *Config) UseDryRun() bool {
	return c.SMSDryRun || strings.TrimSpace(c.SMSAPIKey) == ""
}

// ClientConfig is the operator console configuration.
type ClientConfig struct {
	DispatchURL        string `env:"SMS_DISPATCH_URL,default=http://localhost:8080"`
	DispatchToken      string `env:"SMS_DISPATCH_TOKEN,required=true"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	ExportDir          string `env:"EXPORT_DIR,default=."`

	Numbers NumberConfig
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if strings.TrimSpace(cfg.DispatchToken) == "" {
		return nil, fmt.Errorf("invalid client config: SMS_DISPATCH_TOKEN is empty")
	}
	if err := cfg.Numbers.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return &cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
