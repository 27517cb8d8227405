package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// DevSessionSecret is the fallback session secret. It is rejected in production.
const DevSessionSecret = "dev-secret-change-in-production"

const (
	BackendMySQL  = "mysql"
	BackendMongo  = "mongo"
	BackendMemory = "memory"

	MailLog   = "log"
	MailSMTP  = "smtp"
	MailKafka = "kafka"
)

var (
	ErrInsecureSecret  = errors.New("SESSION_SECRET must be set in production environment")
	ErrBcryptCost      = errors.New("BCRYPT_COST must be between 10 and 31")
	ErrPasswordBounds  = errors.New("PASSWORD_MIN_LENGTH must be positive and not exceed PASSWORD_MAX_LENGTH (max 72)")
	ErrUnknownBackend  = errors.New("STORE_BACKEND must be one of mysql, mongo, memory")
	ErrUnknownMailer   = errors.New("MAIL_TRANSPORT must be one of log, smtp, kafka")
	ErrResetWindow     = errors.New("PASSWORD_RESET_EXPIRES must be positive")
	ErrSessionMaxAge   = errors.New("SESSION_MAX_AGE must not be negative")
	ErrSweepInterval   = errors.New("SESSION_SWEEP_INTERVAL must be positive")
	ErrLogMailerInProd = errors.New("MAIL_TRANSPORT=log is not allowed in production environment")
	ErrMissingKafka    = errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka mail transport")
	ErrMissingSMTPHost = errors.New("SMTP_HOST is required for the smtp mail transport")
)

type Config struct {
	Port    string `env:"PORT" envDefault:"3000"`
	Env     string `env:"ENV" envDefault:"development"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`
	AppName string `env:"APP_NAME" envDefault:"ExMoBoTy Starter"`

	StoreBackend   string `env:"STORE_BACKEND" envDefault:"mysql"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"root:password@tcp(127.0.0.1:3306)/starter?parseTime=true"`
	MongoURI       string `env:"MONGODB_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase  string `env:"MONGODB_DATABASE" envDefault:"starter"`
	ConnectRetries uint64 `env:"DB_CONNECT_RETRIES" envDefault:"5"`

	SessionSecret        string        `env:"SESSION_SECRET" envDefault:"dev-secret-change-in-production"`
	SessionName          string        `env:"SESSION_NAME" envDefault:"starter.sid"`
	SessionMaxAge        time.Duration `env:"SESSION_MAX_AGE" envDefault:"1h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`

	BcryptCost           int           `env:"BCRYPT_COST" envDefault:"10"`
	PasswordMinLength    int           `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordMaxLength    int           `env:"PASSWORD_MAX_LENGTH" envDefault:"72"`
	PasswordResetExpires time.Duration `env:"PASSWORD_RESET_EXPIRES" envDefault:"1h"`

	MailTransport string   `env:"MAIL_TRANSPORT" envDefault:"log"`
	MailFrom      string   `env:"MAIL_FROM" envDefault:"no-reply@localhost"`
	AppEmail      string   `env:"APP_EMAIL" envDefault:"contact@localhost"`
	SMTPHost      string   `env:"SMTP_HOST"`
	SMTPPort      int      `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername  string   `env:"SMTP_USERNAME"`
	SMTPPassword  string   `env:"SMTP_PASSWORD"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"mail.outbound"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// Load parses the process environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.MailTransport = strings.ToLower(strings.TrimSpace(cfg.MailTransport))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) Validate() error {
	if c.IsProduction() && (c.SessionSecret == "" || c.SessionSecret == DevSessionSecret) {
		return ErrInsecureSecret
	}
	if c.BcryptCost < 10 || c.BcryptCost > bcrypt.MaxCost {
		return ErrBcryptCost
	}
	if c.PasswordMinLength < 1 || c.PasswordMaxLength > 72 || c.PasswordMinLength > c.PasswordMaxLength {
		return ErrPasswordBounds
	}
	if c.PasswordResetExpires <= 0 {
		return ErrResetWindow
	}
	if c.SessionMaxAge < 0 {
		return ErrSessionMaxAge
	}
	if c.SessionSweepInterval <= 0 {
		return ErrSweepInterval
	}

	switch c.StoreBackend {
	case BackendMySQL, BackendMongo, BackendMemory:
	default:
		return ErrUnknownBackend
	}

	switch c.MailTransport {
	case MailLog:
		if c.IsProduction() {
			return ErrLogMailerInProd
		}
	case MailSMTP:
		if c.SMTPHost == "" {
			return ErrMissingSMTPHost
		}
	case MailKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return ErrMissingKafka
		}
	default:
		return ErrUnknownMailer
	}

	return nil
}
