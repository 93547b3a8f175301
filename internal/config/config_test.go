package config

import (
	"os"
	"testing"
)

var optionalKeys = []string{
	"REDIS_URL", "SMS_API_URL", "SMS_BALANCE_URL", "SMS_API_KEY", "SMS_SENDER_ID", "SMS_DRY_RUN",
	"RATE_LIMIT_PER_SEC", "SEND_CONCURRENCY", "API_PORT", "LOG_LEVEL", "CORS_ORIGINS",
	"DEFAULT_COUNTRY_CODE", "MIN_NUMBER_LENGTH", "STUDENT_PHONE_FIELD", "GUARDIAN_PHONE_FIELD", "MESSAGE_FIELD",
	"SMS_DISPATCH_URL", "EXPORT_DIR",
}

// unsetEnv removes keys for the duration of the test. A key set to "" would
// count as present and skip its default.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Unsetenv(%s) error = %v", key, err)
		}
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t, optionalKeys...)
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("API_TOKENS", "operator-token, second-token ,")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 100 {
		t.Errorf("RateLimitPerSec = %d, want 100", cfg.RateLimitPerSec)
	}
	if cfg.SMSAPIURL != "https://api.sms.net.bd/sendsms" {
		t.Errorf("SMSAPIURL = %s, want sms.net.bd default", cfg.SMSAPIURL)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if !cfg.UseDryRun() {
		t.Error("UseDryRun() = false, want true without an api key")
	}

	mapping := cfg.Numbers.FieldMapping()
	if mapping.Student != "Student Phone No" || mapping.Guardian != "Guardian Phone No" || mapping.Message != "Result" {
		t.Errorf("FieldMapping() = %+v", mapping)
	}
	if got := cfg.Numbers.Normalizer().CountryCode(); got != "880" {
		t.Errorf("CountryCode() = %s, want 880", got)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_PER_SEC", "250")
	t.Setenv("SMS_API_KEY", "gateway-key")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("MESSAGE_FIELD", "Message")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 250 {
		t.Errorf("RateLimitPerSec = %d, want 250", cfg.RateLimitPerSec)
	}
	if cfg.UseDryRun() {
		t.Error("UseDryRun() = true, want false with an api key")
	}
	if got := cfg.AllowedOrigins(); got != "http://a.test,http://b.test" {
		t.Errorf("AllowedOrigins() = %q", got)
	}
	if got := cfg.Numbers.FieldMapping().Message; got != "Message" {
		t.Errorf("FieldMapping().Message = %q, want Message", got)
	}
}

func TestLoad_Tokens(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tokens := cfg.Tokens()
	if len(tokens) != 2 || tokens[0] != "operator-token" || tokens[1] != "second-token" {
		t.Fatalf("Tokens() = %v", tokens)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	unsetEnv(t, append(optionalKeys, "API_TOKENS")...)
	t.Setenv("DATABASE_DSN", "host=localhost")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_InvalidNumberSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DEFAULT_COUNTRY_CODE", "+88O")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-digit country code")
	}
}

func TestLoadClient(t *testing.T) {
	unsetEnv(t, optionalKeys...)
	t.Setenv("SMS_DISPATCH_TOKEN", "operator-token")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DispatchURL != "http://localhost:8080" {
		t.Errorf("DispatchURL = %s, want http://localhost:8080", cfg.DispatchURL)
	}
	if cfg.ExportDir != "." {
		t.Errorf("ExportDir = %s, want .", cfg.ExportDir)
	}
	if cfg.Numbers.MinNumberLength != 11 {
		t.Errorf("MinNumberLength = %d, want 11", cfg.Numbers.MinNumberLength)
	}
}

func TestLoadClient_MissingToken(t *testing.T) {
	unsetEnv(t, append(optionalKeys, "SMS_DISPATCH_TOKEN")...)

	if _, err := LoadClient(); err == nil {
		t.Fatal("expected error for missing token")
	}
}
