package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Mail      MailSettings      `mapstructure:"mail"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthSettings drives token signing and the OTP flows.
type AuthSettings struct {
	SigningSecret       string        `mapstructure:"signing_secret"`
	Issuer              string        `mapstructure:"issuer"`
	OTPTTL              time.Duration `mapstructure:"otp_ttl"`
	OTPDigits           int           `mapstructure:"otp_digits"`
	VerificationTTL     time.Duration `mapstructure:"verification_ttl"`
	AccessTTL           time.Duration `mapstructure:"access_ttl"`
	RefreshTTL          time.Duration `mapstructure:"refresh_ttl"`
	UsernameAttempts    int           `mapstructure:"username_attempts"`
	PasswordMinStrength int           `mapstructure:"password_min_strength"`
	// Store selects the ephemeral store backend: "redis" or "memory".
	Store string `mapstructure:"store"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	EphemeralPrefix string `mapstructure:"ephemeral_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures Kafka producers
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// MailSettings selects and configures the mail dispatcher.
type MailSettings struct {
	// Driver is one of "smtp", "kafka" or "log".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// Timeout bounds a single SMTP submission.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration          time.Duration `mapstructure:"window_duration"`
	SignInMaxAttempts       int           `mapstructure:"sign_in_max_attempts"`
	SignUpMaxAttempts       int           `mapstructure:"sign_up_max_attempts"`
	ResendMaxAttempts       int           `mapstructure:"resend_max_attempts"`
	ForgetPasswordAttempts  int           `mapstructure:"forget_password_max_attempts"`
	VerifyOTPMaxAttempts    int           `mapstructure:"verify_otp_max_attempts"`
	RefreshTokenMaxAttempts int           `mapstructure:"refresh_token_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

var keys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"auth.signing_secret",
	"auth.issuer",
	"auth.otp_ttl",
	"auth.otp_digits",
	"auth.verification_ttl",
	"auth.access_ttl",
	"auth.refresh_ttl",
	"auth.username_attempts",
	"auth.password_min_strength",
	"auth.store",
	"grpc.host",
	"grpc.port",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.ephemeral_prefix",
	"redis.rate_limit_prefix",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"mail.driver",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",
	"mail.timeout",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.sign_in_max_attempts",
	"rate_limit.sign_up_max_attempts",
	"rate_limit.resend_max_attempts",
	"rate_limit.forget_password_max_attempts",
	"rate_limit.verify_otp_max_attempts",
	"rate_limit.refresh_token_max_attempts",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, keys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	if c.Auth.SigningSecret == "" {
		return errors.New("config: auth.signing_secret is required")
	}
	if c.Auth.OTPDigits < 1 || c.Auth.OTPDigits > 9 {
		return fmt.Errorf("config: auth.otp_digits must be between 1 and 9, got %d", c.Auth.OTPDigits)
	}
	for name, ttl := range map[string]time.Duration{
		"auth.otp_ttl":          c.Auth.OTPTTL,
		"auth.verification_ttl": c.Auth.VerificationTTL,
		"auth.access_ttl":       c.Auth.AccessTTL,
		"auth.refresh_ttl":      c.Auth.RefreshTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	switch c.Auth.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown auth.store %q", c.Auth.Store)
	}
	switch c.Mail.Driver {
	case "smtp", "log":
	case "kafka":
		if !c.Kafka.Enabled {
			return errors.New("config: mail.driver=kafka requires kafka.enabled")
		}
	default:
		return fmt.Errorf("config: unknown mail.driver %q", c.Mail.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "authflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("auth.issuer", "authflow")
	v.SetDefault("auth.otp_ttl", "15m")
	v.SetDefault("auth.otp_digits", 4)
	v.SetDefault("auth.verification_ttl", "15m")
	v.SetDefault("auth.access_ttl", "1h")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.username_attempts", 20)
	v.SetDefault("auth.password_min_strength", 0)
	v.SetDefault("auth.store", "redis")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "authflow")
	v.SetDefault("postgres.password", "authflow_password")
	v.SetDefault("postgres.database", "authflow")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.ephemeral_prefix", "authflow")
	v.SetDefault("redis.rate_limit_prefix", "authflow:rate_limit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "authflow")

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 1025)
	v.SetDefault("mail.from", "no-reply@authflow.local")
	v.SetDefault("mail.timeout", 10*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "authflow")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.sign_in_max_attempts", 5)
	v.SetDefault("rate_limit.sign_up_max_attempts", 3)
	v.SetDefault("rate_limit.resend_max_attempts", 3)
	v.SetDefault("rate_limit.forget_password_max_attempts", 3)
	v.SetDefault("rate_limit.verify_otp_max_attempts", 10)
	v.SetDefault("rate_limit.refresh_token_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
