package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the relay.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	MSP      MSPConfig
	OTRS     OTRSConfig
	SMTP     SMTPConfig
	Relay    RelayConfig
	Mapping  MappingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN disables the delivery log.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables per-ticket sequencing.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// MSPConfig points at the service-desk requests API.
type MSPConfig struct {
	RequestsURL        string
	APIKey             string
	TimeoutSeconds     int
	InsecureSkipVerify bool
	BodyEncoding       string
	ListPageSize       int
	ListMaxPages       int
	RenderMarkdown     bool
}

// OTRSConfig points at the GenericInterface web service.
type OTRSConfig struct {
	WebserviceURL       string
	UserLogin           string
	Password            string
	ArticleFrom         string
	ClosedState         string
	PendingDiff         string
	DefaultQueue        string
	DefaultState        string
	DefaultPriority     string
	DefaultType         string
	DefaultCustomerUser string
	TimeoutSeconds      int
}

// SMTPConfig is used by the email forward transport.
type SMTPConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	From           string
	IntakeTo       string
	StartTLS       bool
	// TimeoutSeconds bounds one whole SMTP submission, dial included.
	TimeoutSeconds int
}

// RelayConfig selects relay behavior.
type RelayConfig struct {
	Transport       string
	FallbackPolicy  string
	WebhookToken    string
	LockTTLSeconds  int
	LockWaitSeconds int
}

// MappingConfig carries the fixed values stamped on requests created in the service desk.
type MappingConfig struct {
	RequesterID     string
	RequesterName   string
	ModeID          string
	ModeName        string
	PriorityID      string
	PriorityName    string
	PriorityColor   string
	CategoryID      string
	CategoryName    string
	SiteID          string
	SiteName        string
	AccountID       string
	AccountName     string
	StatusName      string
	ReassignAccount string
	ReassignAcctID  string
	ReassignName    string
	ReassignEmail   string
}

// Transport values.
const (
	TransportREST  = "rest"
	TransportEmail = "email"
)

// Body encodings understood by the service-desk API.
const (
	EncodingJSON = "json"
	EncodingForm = "form"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", getEnv("APP_PORT", "8080")),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		MSP: MSPConfig{
			RequestsURL:        strings.TrimRight(getEnv("SDP_URL", "https://172.20.0.22:8443/api/v3/requests"), "/"),
			APIKey:             os.Getenv("SDP_API_KEY"),
			TimeoutSeconds:     getEnvAsInt("MSP_TIMEOUT_SECONDS", 15),
			InsecureSkipVerify: getEnvAsBool("MSP_INSECURE_SKIP_VERIFY", false),
			BodyEncoding:       strings.ToLower(getEnv("MSP_BODY_ENCODING", EncodingJSON)),
			ListPageSize:       getEnvAsInt("MSP_LIST_PAGE_SIZE", 100),
			ListMaxPages:       getEnvAsInt("MSP_LIST_MAX_PAGES", 10),
			RenderMarkdown:     getEnvAsBool("MSP_RENDER_MARKDOWN", true),
		},
		OTRS: OTRSConfig{
			WebserviceURL:       strings.TrimRight(getEnv("OTRS_WEBSERVICE_URL", "https://sd.example.com/otrs/nph-genericinterface.pl/Webservice/Relay"), "/"),
			UserLogin:           os.Getenv("OTRS_USER_LOGIN"),
			Password:            os.Getenv("OTRS_PASSWORD"),
			ArticleFrom:         getEnv("OTRS_ARTICLE_FROM", "relay@example.com"),
			ClosedState:         getEnv("OTRS_CLOSED_STATE", "Resolvido"),
			PendingDiff:         getEnv("OTRS_PENDING_DIFF_SECONDS", "259200"),
			DefaultQueue:        getEnv("OTRS_DEFAULT_QUEUE", "Raw"),
			DefaultState:        getEnv("OTRS_DEFAULT_STATE", "new"),
			DefaultPriority:     getEnv("OTRS_DEFAULT_PRIORITY", "3 normal"),
			DefaultType:         getEnv("OTRS_DEFAULT_TYPE", "Unclassified"),
			DefaultCustomerUser: getEnv("OTRS_DEFAULT_CUSTOMER_USER", "msp.integracao"),
			TimeoutSeconds:      getEnvAsInt("OTRS_TIMEOUT_SECONDS", 15),
		},
		SMTP: SMTPConfig{
			Host:           os.Getenv("SMTP_HOST"),
			Port:           getEnvAsInt("SMTP_PORT", 587),
			User:           os.Getenv("SMTP_USER"),
			Password:       os.Getenv("SMTP_PASSWORD"),
			From:           getEnv("SMTP_FROM", "relay@example.com"),
			IntakeTo:       os.Getenv("SMTP_INTAKE_TO"),
			StartTLS:       getEnvAsBool("SMTP_STARTTLS", true),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 15),
		},
		Relay: RelayConfig{
			Transport:       strings.ToLower(getEnv("RELAY_TRANSPORT", TransportREST)),
			FallbackPolicy:  strings.ToLower(getEnv("RELAY_FALLBACK_POLICY", "placeholder")),
			WebhookToken:    os.Getenv("RELAY_WEBHOOK_TOKEN"),
			LockTTLSeconds:  getEnvAsInt("RELAY_LOCK_TTL_SECONDS", 60),
			LockWaitSeconds: getEnvAsInt("RELAY_LOCK_WAIT_SECONDS", 10),
		},
		Mapping: MappingConfig{
			RequesterID:     getEnv("MSP_DEFAULT_REQUESTER_ID", "20703"),
			RequesterName:   getEnv("MSP_DEFAULT_REQUESTER_NAME", "Integração OTRS"),
			ModeID:          getEnv("MSP_DEFAULT_MODE_ID", "2"),
			ModeName:        getEnv("MSP_DEFAULT_MODE_NAME", "Web"),
			PriorityID:      getEnv("MSP_DEFAULT_PRIORITY_ID", "301"),
			PriorityName:    getEnv("MSP_DEFAULT_PRIORITY_NAME", "Baixa"),
			PriorityColor:   getEnv("MSP_DEFAULT_PRIORITY_COLOR", "#0066ff"),
			CategoryID:      getEnv("MSP_DEFAULT_CATEGORY_ID", "601"),
			CategoryName:    getEnv("MSP_DEFAULT_CATEGORY_NAME", "Crowdstrike"),
			SiteID:          getEnv("MSP_DEFAULT_SITE_ID", "304"),
			SiteName:        getEnv("MSP_DEFAULT_SITE_NAME", "ContaTeste"),
			AccountID:       getEnv("MSP_DEFAULT_ACCOUNT_ID", "303"),
			AccountName:     getEnv("MSP_DEFAULT_ACCOUNT_NAME", "ContaTeste"),
			StatusName:      getEnv("MSP_DEFAULT_STATUS_NAME", "Aberto"),
			ReassignAccount: getEnv("MSP_REASSIGN_ACCOUNT_NAME", "AENA"),
			ReassignAcctID:  getEnv("MSP_REASSIGN_ACCOUNT_ID", "1"),
			ReassignName:    os.Getenv("MSP_REASSIGN_REQUESTER_NAME"),
			ReassignEmail:   os.Getenv("MSP_REASSIGN_REQUESTER_EMAIL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Relay.Transport {
	case TransportREST:
	case TransportEmail:
		if c.SMTP.Host == "" || c.SMTP.IntakeTo == "" {
			return fmt.Errorf("RELAY_TRANSPORT=email requires SMTP_HOST and SMTP_INTAKE_TO")
		}
	default:
		return fmt.Errorf("invalid RELAY_TRANSPORT %q", c.Relay.Transport)
	}
	switch c.MSP.BodyEncoding {
	case EncodingJSON, EncodingForm:
	default:
		return fmt.Errorf("invalid MSP_BODY_ENCODING %q", c.MSP.BodyEncoding)
	}
	switch c.Relay.FallbackPolicy {
	case "placeholder", "reject":
	default:
		return fmt.Errorf("invalid RELAY_FALLBACK_POLICY %q", c.Relay.FallbackPolicy)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call timeout for the service-desk API.
func (m MSPConfig) Timeout() time.Duration {
	return seconds(m.TimeoutSeconds, 15)
}

// Timeout returns the per-call timeout for the GenericInterface.
func (o OTRSConfig) Timeout() time.Duration {
	return seconds(o.TimeoutSeconds, 15)
}

// Addr returns host:port for SMTP submission.
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the per-message submission timeout.
func (s SMTPConfig) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds, 15)
}

// LockTTL bounds how long a per-ticket lock may be held.
func (r RelayConfig) LockTTL() time.Duration {
	return seconds(r.LockTTLSeconds, 60)
}

// LockWait bounds how long a delivery waits for a busy ticket.
func (r RelayConfig) LockWait() time.Duration {
	return seconds(r.LockWaitSeconds, 10)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
