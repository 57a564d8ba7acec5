package config

import (
	"time"
)

type AppConfig struct {
	APIPort     string   `env:"PORT" envDefault:"12222"`
	APIKey      string   `env:"API_KEY"`
	CorsOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	LocalDev    bool     `env:"LOCAL_DEV" envDefault:"false"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILCLEAN_POSTGRES_HOST,required"`
	Port            string `env:"MAILCLEAN_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"MAILCLEAN_POSTGRES_USER,required"`
	DBName          string `env:"MAILCLEAN_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILCLEAN_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILCLEAN_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"MAILCLEAN_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILCLEAN_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"3600"`
	LogLevel        string `env:"MAILCLEAN_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILCLEAN_POSTGRES_SSL_MODE" envDefault:"require"`
}

// GmailConfig holds the installed-app OAuth credentials of the single mailbox
// this service cleans. Obtaining the refresh token is out of scope.
type GmailConfig struct {
	ClientID       string        `env:"GMAIL_CLIENT_ID"`
	ClientSecret   string        `env:"GMAIL_CLIENT_SECRET"`
	RefreshToken   string        `env:"GMAIL_REFRESH_TOKEN"`
	UserID         string        `env:"GMAIL_USER_ID" envDefault:"me"`
	RequestsPerSec float64       `env:"GMAIL_RPS" envDefault:"10"`
	Burst          int           `env:"GMAIL_BURST" envDefault:"10"`
	RequestTimeout time.Duration `env:"GMAIL_REQUEST_TIMEOUT" envDefault:"30s"`
}

type PlanConfig struct {
	UnsubscribeThreshold int           `env:"PLAN_UNSUBSCRIBE_THRESHOLD" envDefault:"10"`
	PlanTTL              time.Duration `env:"PLAN_TTL" envDefault:"24h"`
	SuppressionLabel     string        `env:"PLAN_SUPPRESSION_LABEL" envDefault:"Unsubscribed"`
}

type ExecutorConfig struct {
	MaxMessages         int           `env:"EXECUTOR_MAX_MESSAGES" envDefault:"1000"`
	ProviderConcurrency int64         `env:"EXECUTOR_PROVIDER_CONCURRENCY" envDefault:"4"`
	MaxRetries          int           `env:"EXECUTOR_MAX_RETRIES" envDefault:"3"`
	BackoffMin          time.Duration `env:"EXECUTOR_BACKOFF_MIN" envDefault:"200ms"`
	BackoffMax          time.Duration `env:"EXECUTOR_BACKOFF_MAX" envDefault:"5s"`
	UnsubscribeTimeout  time.Duration `env:"EXECUTOR_UNSUBSCRIBE_TIMEOUT" envDefault:"10s"`
}

type ScanConfig struct {
	MaxMessages int    `env:"SCAN_MAX_MESSAGES" envDefault:"2000"`
	Query       string `env:"SCAN_QUERY" envDefault:"newer_than:365d -in:chats"`
	Concurrency int    `env:"SCAN_CONCURRENCY" envDefault:"8"`
	PageSize    int64  `env:"SCAN_PAGE_SIZE" envDefault:"500"`
}

type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_AUDIT_EXCHANGE" envDefault:"mailclean-audit"`
}

// StorageConfig points at an S3 compatible bucket. Set AccountID to target
// Cloudflare R2 instead of AWS.
type StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	Region          string `env:"AUDIT_EXPORT_REGION" envDefault:"auto"`
	AccessKeyID     string `env:"AUDIT_EXPORT_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"AUDIT_EXPORT_ACCESS_KEY_SECRET"`
	Bucket          string `env:"AUDIT_EXPORT_BUCKET"`
	Prefix          string `env:"AUDIT_EXPORT_PREFIX" envDefault:"audit"`
}

func (c *StorageConfig) Enabled() bool {
	return c != nil && c.Bucket != "" && c.AccessKeyID != "" && c.AccessKeySecret != ""
}

func (c *GmailConfig) Configured() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}
