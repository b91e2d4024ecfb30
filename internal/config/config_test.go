package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsEveryMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected aggregated *Error, got %T", err)
	}
	for _, key := range []string{"APP_ENV", "APP_PORT", "DB_HOST", "DB_USER", "REDIS_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("missing %s in %q", key, err.Error())
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "dialer", "operators"
	c.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+15550000000", PublicBaseURL: "https://x"}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl default: %s", c.Auth.AccessTokenTTL)
	}
	if c.Dialer.Provider != "twilio" || c.Dialer.CapTTL != 15*time.Minute || c.Dialer.StaleAfter != 10*time.Minute {
		t.Fatalf("dialer defaults: %+v", c.Dialer)
	}
	if c.FollowUp.MaxInFlight != 8 || c.FollowUp.SendTimeout != 30*time.Second {
		t.Fatalf("follow-up defaults: %+v", c.FollowUp)
	}
}

func TestValidate_ProviderSections(t *testing.T) {
	c := validLocal()
	c.Twilio.AccountSID = "AC1"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
		t.Fatalf("expected twilio section errors, got %v", err)
	}

	c = validLocal()
	c.Dialer.Provider = "asterisk"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DIALER_PROVIDER") {
		t.Fatalf("expected provider error, got %v", err)
	}

	c = validLocal()
	c.FollowUp.EmailEnabled = true
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "SMTP_HOST") {
		t.Fatalf("expected smtp error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":                  "dev",
		"APP_PORT":                 "9000",
		"DB_HOST":                  "db",
		"DB_PORT":                  "5432",
		"DB_USER":                  "dialer",
		"DB_NAME":                  "dialer",
		"REDIS_HOST":               "cache",
		"REDIS_PORT":               "6379",
		"JWT_SECRET":               "s3cret",
		"DIALER_PACING":            "2",
		"FOLLOWUP_SMS_ENABLED":     "true",
		"FOLLOWUP_SEND_TIMEOUT":    "5s",
		"TWILIO_MACHINE_DETECTION": "1",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9000" || c.RedisAddr() != "cache:6379" {
		t.Fatalf("addrs: %s %s", c.HTTPAddr(), c.RedisAddr())
	}
	if c.Dialer.DefaultPacing != 2*time.Second || c.FollowUp.SendTimeout != 5*time.Second {
		t.Fatalf("durations: %+v %+v", c.Dialer, c.FollowUp)
	}
	if !c.FollowUp.SMSEnabled || !c.Twilio.MachineDetection {
		t.Fatalf("bools not parsed: %+v %+v", c.FollowUp, c.Twilio)
	}
	if !strings.Contains(c.PostgresDSN(), "sslmode=disable") {
		t.Fatalf("dsn missing default sslmode: %s", c.PostgresDSN())
	}
}

func TestLoad_ParseErrorsAggregate(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("DIALER_PACING", "soon")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"APP_PORT must be an integer", "DB_PORT is required", "DIALER_PACING must be a duration"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %q", want, err.Error())
		}
	}
}
