package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config holds all configuration required by the dialer processes.
// All values come from env; a .env file in the working directory is
// preloaded when present and never overrides variables already set.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Vapi     VapiConfig
	Dialer   DialerConfig
	FollowUp FollowUpConfig
	SMTP     SMTPConfig
	Sentry   SentryConfig

	// ScriptsFile is an optional YAML file of voice scripts.
	ScriptsFile string
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
	MaxOpen int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// Operators is a comma separated list of user:password:role triples
	// accepted by the login endpoint.
	Operators string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// PublicBaseURL is the externally visible origin Twilio calls back on.
	// Signatures are computed over it, so it must match exactly.
	PublicBaseURL    string
	MachineDetection bool
	Record           bool
	StreamURL        string
}

func (t TwilioConfig) Enabled() bool { return t.AccountSID != "" }

// VapiConfig configures the AI voice provider. Its webhooks carry no
// signature; see VAPI_WEBHOOK_UNVERIFIED.
type VapiConfig struct {
	APIKey        string
	AssistantID   string
	PhoneNumberID string
	BaseURL       string
}

func (v VapiConfig) Enabled() bool { return v.APIKey != "" }

type DialerConfig struct {
	// Provider selects the outbound adapter: twilio or vapi.
	Provider      string
	DefaultPacing time.Duration
	MaxConcurrent int
	// CapTTL reclaims concurrency slots leaked by a crashed process.
	CapTTL time.Duration
	// StaleAfter fails placed calls that never received a provider callback.
	StaleAfter time.Duration
}

type FollowUpConfig struct {
	SMSEnabled   bool
	EmailEnabled bool
	MaxInFlight  int
	SendTimeout  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SentryConfig struct {
	DSN string
}

// LoadDotEnv preloads .env if it exists.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func Load() (Config, error) {
	LoadDotEnv()

	c := Config{}
	var parseErrs error
	intVar := func(dst *int, key string, required bool) {
		n, err := envInt(key, required)
		parseErrs = multierr.Append(parseErrs, err)
		*dst = n
	}
	durVar := func(dst *time.Duration, key string) {
		d, err := envDuration(key)
		parseErrs = multierr.Append(parseErrs, err)
		*dst = d
	}
	boolVar := func(dst *bool, key string) {
		b, err := envBool(key)
		parseErrs = multierr.Append(parseErrs, err)
		*dst = b
	}

	c.App.Env = env("APP_ENV")
	intVar(&c.App.Port, "APP_PORT", true)
	c.App.LogLevel = env("LOG_LEVEL")

	c.DB.Host = env("DB_HOST")
	intVar(&c.DB.Port, "DB_PORT", true)
	c.DB.User = env("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = env("DB_NAME")
	c.DB.SSLMode = env("DB_SSLMODE")
	intVar(&c.DB.MaxOpen, "DB_MAX_OPEN", false)

	c.Redis.Host = env("REDIS_HOST")
	intVar(&c.Redis.Port, "REDIS_PORT", true)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	intVar(&c.Redis.DB, "REDIS_DB", false)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = env("JWT_ISSUER")
	c.Auth.JWTAudience = env("JWT_AUDIENCE")
	durVar(&c.Auth.AccessTokenTTL, "JWT_ACCESS_TTL")
	c.Auth.Operators = os.Getenv("OPERATORS")

	c.Twilio.AccountSID = env("TWILIO_ACCOUNT_SID")
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = env("TWILIO_FROM_NUMBER")
	c.Twilio.PublicBaseURL = strings.TrimRight(env("PUBLIC_BASE_URL"), "/")
	boolVar(&c.Twilio.MachineDetection, "TWILIO_MACHINE_DETECTION")
	boolVar(&c.Twilio.Record, "TWILIO_RECORD")
	c.Twilio.StreamURL = env("TWILIO_STREAM_URL")

	c.Vapi.APIKey = os.Getenv("VAPI_API_KEY")
	c.Vapi.AssistantID = env("VAPI_ASSISTANT_ID")
	c.Vapi.PhoneNumberID = env("VAPI_PHONE_NUMBER_ID")
	c.Vapi.BaseURL = env("VAPI_BASE_URL")

	c.Dialer.Provider = strings.ToLower(env("DIALER_PROVIDER"))
	durVar(&c.Dialer.DefaultPacing, "DIALER_PACING")
	intVar(&c.Dialer.MaxConcurrent, "DIALER_MAX_CONCURRENT", false)
	durVar(&c.Dialer.CapTTL, "DIALER_CAP_TTL")
	durVar(&c.Dialer.StaleAfter, "DIALER_STALE_AFTER")

	boolVar(&c.FollowUp.SMSEnabled, "FOLLOWUP_SMS_ENABLED")
	boolVar(&c.FollowUp.EmailEnabled, "FOLLOWUP_EMAIL_ENABLED")
	intVar(&c.FollowUp.MaxInFlight, "FOLLOWUP_MAX_IN_FLIGHT", false)
	durVar(&c.FollowUp.SendTimeout, "FOLLOWUP_SEND_TIMEOUT")

	c.SMTP.Host = env("SMTP_HOST")
	intVar(&c.SMTP.Port, "SMTP_PORT", false)
	c.SMTP.Username = env("SMTP_USERNAME")
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = env("SMTP_FROM")

	c.Sentry.DSN = env("SENTRY_DSN")
	c.ScriptsFile = env("SCRIPTS_FILE")

	if parseErrs != nil {
		return Config{}, report(parseErrs)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills defaults in place.
func (c *Config) Validate() error {
	var errs error
	add := func(err error) { errs = multierr.Append(errs, err) }

	if c.App.Env == "" {
		add(errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		add(fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		add(fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		add(errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		add(fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		add(errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		add(errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			add(errors.New("DB_SSLMODE is required in production"))
		} else {
			// production must be explicit
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		add(fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxOpen <= 0 {
		c.DB.MaxOpen = 10
	}

	if c.Redis.Host == "" {
		add(errors.New("REDIS_HOST is required"))
	}
	if !validPort(c.Redis.Port) {
		add(fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		add(errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			add(errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			add(errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Dialer.Provider == "" {
		c.Dialer.Provider = "twilio"
	}
	switch c.Dialer.Provider {
	case "twilio":
		if c.Twilio.Enabled() {
			if c.Twilio.AuthToken == "" {
				add(errors.New("TWILIO_AUTH_TOKEN is required with TWILIO_ACCOUNT_SID"))
			}
			if c.Twilio.FromNumber == "" {
				add(errors.New("TWILIO_FROM_NUMBER is required with TWILIO_ACCOUNT_SID"))
			}
			if c.Twilio.PublicBaseURL == "" {
				add(errors.New("PUBLIC_BASE_URL is required with TWILIO_ACCOUNT_SID"))
			}
		} else if c.IsProduction() {
			add(errors.New("TWILIO_ACCOUNT_SID is required in production when DIALER_PROVIDER=twilio"))
		}
	case "vapi":
		if c.Vapi.Enabled() && (c.Vapi.AssistantID == "" || c.Vapi.PhoneNumberID == "") {
			add(errors.New("VAPI_ASSISTANT_ID and VAPI_PHONE_NUMBER_ID are required with VAPI_API_KEY"))
		}
		if !c.Vapi.Enabled() && c.IsProduction() {
			add(errors.New("VAPI_API_KEY is required in production when DIALER_PROVIDER=vapi"))
		}
	default:
		add(fmt.Errorf("DIALER_PROVIDER must be twilio or vapi, got %q", c.Dialer.Provider))
	}
	if c.Dialer.DefaultPacing < 0 {
		add(fmt.Errorf("DIALER_PACING must not be negative, got %s", c.Dialer.DefaultPacing))
	}
	if c.Dialer.MaxConcurrent < 0 {
		add(fmt.Errorf("DIALER_MAX_CONCURRENT must not be negative, got %d", c.Dialer.MaxConcurrent))
	}
	if c.Dialer.StaleAfter <= 0 {
		c.Dialer.StaleAfter = 10 * time.Minute
	}
	if c.Dialer.CapTTL <= 0 {
		c.Dialer.CapTTL = 15 * time.Minute
	}

	if c.FollowUp.MaxInFlight <= 0 {
		c.FollowUp.MaxInFlight = 8
	}
	if c.FollowUp.SendTimeout <= 0 {
		c.FollowUp.SendTimeout = 30 * time.Second
	}
	if c.FollowUp.EmailEnabled {
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			add(errors.New("SMTP_HOST and SMTP_FROM are required when FOLLOWUP_EMAIL_ENABLED"))
		}
		if c.SMTP.Port == 0 {
			c.SMTP.Port = 587
		}
		if !validPort(c.SMTP.Port) {
			add(fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.SMTP.Port))
		}
	}

	if errs != nil {
		return report(errs)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, required bool) (int, error) {
	v := env(key)
	if v == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("750ms") or whole seconds ("2").
func envDuration(key string) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func envBool(key string) (bool, error) {
	v := env(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

// report formats an aggregated error one problem per line. The result still
// unwraps to the individual errors.
func report(err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:")
	for _, e := range errs {
		b.WriteString("\n- ")
		b.WriteString(e.Error())
	}
	return &Error{msg: b.String(), errs: errs}
}

// Error lists every configuration problem found in one pass.
type Error struct {
	msg  string
	errs []error
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) Unwrap() []error { return e.errs }
