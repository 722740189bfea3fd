package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read from the environment and an optional .env file.
type Config struct {
	Addr string `mapstructure:"FOLIO_ADDR"` // listen address (default :8080)
	// PublicURL is where browsers reach the admin. Invitation links are built from it.
	PublicURL string `mapstructure:"FOLIO_PUBLIC_URL"`

	DatabaseDriver string `mapstructure:"FOLIO_DB_DRIVER"` // sqlite or postgres (default sqlite)
	DatabaseDSN    string `mapstructure:"FOLIO_DB_DSN"`    // file path for sqlite, URL for postgres
	PepperFile     string `mapstructure:"FOLIO_PEPPER_FILE"`

	// DBConnectAttempts bounds retries while the database comes up.
	DBConnectAttempts uint `mapstructure:"FOLIO_DB_CONNECT_ATTEMPTS"`

	SessionTTL    time.Duration `mapstructure:"FOLIO_SESSION_TTL"`
	InvitationTTL time.Duration `mapstructure:"FOLIO_INVITATION_TTL"`

	LoginAttempts int           `mapstructure:"FOLIO_LOGIN_ATTEMPTS"`
	LoginWindow   time.Duration `mapstructure:"FOLIO_LOGIN_WINDOW"`
	// RedisURL, when set, shares login counters between replicas.
	RedisURL string `mapstructure:"FOLIO_REDIS_URL"`

	// HTTPS must only be enabled behind confirmed TLS termination. It
	// marks cookies Secure and turns on HSTS.
	HTTPS          bool          `mapstructure:"FOLIO_HTTPS"`
	HSTSMaxAge     time.Duration `mapstructure:"FOLIO_HSTS_MAX_AGE"`
	StyleSources   []string      `mapstructure:"FOLIO_CSP_STYLE_SOURCES"`
	FontSources    []string      `mapstructure:"FOLIO_CSP_FONT_SOURCES"`
	ImageSources   []string      `mapstructure:"FOLIO_CSP_IMG_SOURCES"`
	DisabledCSP    []string      `mapstructure:"FOLIO_CSP_DISABLED"`
	ReferrerPolicy string        `mapstructure:"FOLIO_REFERRER_POLICY"`

	SMTPHost     string `mapstructure:"FOLIO_SMTP_HOST"` // empty logs invitation links instead
	SMTPPort     int    `mapstructure:"FOLIO_SMTP_PORT"`
	SMTPUsername string `mapstructure:"FOLIO_SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"FOLIO_SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"FOLIO_SMTP_FROM"`
	SiteName     string `mapstructure:"FOLIO_SITE_NAME"`

	UploadsDir string `mapstructure:"FOLIO_UPLOADS_DIR"`

	ReapInterval    time.Duration `mapstructure:"FOLIO_REAP_INTERVAL"`
	ReapProbability float64       `mapstructure:"FOLIO_REAP_PROBABILITY"`

	MetricsEnabled bool `mapstructure:"FOLIO_METRICS"`

	Env       string `mapstructure:"ENV"`       // dev, staging, prod
	LogLevel  string `mapstructure:"LOG_LEVEL"` // debug, info, warn, error
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// LogFile, when set, writes logs to a rotated file instead of stdout.
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`

	ShutdownGracePeriod time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
}

var defaults = map[string]any{
	"FOLIO_ADDR":                ":8080",
	"FOLIO_PUBLIC_URL":          "http://localhost:8080",
	"FOLIO_DB_DRIVER":           "sqlite",
	"FOLIO_DB_DSN":              "folio.db",
	"FOLIO_PEPPER_FILE":         "pepper",
	"FOLIO_DB_CONNECT_ATTEMPTS": 5,
	"FOLIO_SESSION_TTL":         "24h",
	"FOLIO_INVITATION_TTL":      "168h",
	"FOLIO_LOGIN_ATTEMPTS":      5,
	"FOLIO_LOGIN_WINDOW":        "15m",
	"FOLIO_REDIS_URL":           "",
	"FOLIO_HTTPS":               false,
	"FOLIO_HSTS_MAX_AGE":        "8760h",
	"FOLIO_CSP_STYLE_SOURCES":   "",
	"FOLIO_CSP_FONT_SOURCES":    "",
	"FOLIO_CSP_IMG_SOURCES":     "",
	"FOLIO_CSP_DISABLED":        "",
	"FOLIO_REFERRER_POLICY":     "strict-origin-when-cross-origin",
	"FOLIO_SMTP_HOST":           "",
	"FOLIO_SMTP_PORT":           587,
	"FOLIO_SMTP_USERNAME":       "",
	"FOLIO_SMTP_PASSWORD":       "",
	"FOLIO_SMTP_FROM":           "",
	"FOLIO_SITE_NAME":           "Folio",
	"FOLIO_UPLOADS_DIR":         "",
	"FOLIO_REAP_INTERVAL":       "1h",
	"FOLIO_REAP_PROBABILITY":    0.01,
	"FOLIO_METRICS":             true,
	"ENV":                       "dev",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"LOG_FILE":                  "",
	"LOG_MAX_SIZE_MB":           100,
	"LOG_MAX_BACKUPS":           5,
	"SHUTDOWN_GRACE_PERIOD":     "10s",
}

// LoadConfig reads envFile (if present, ".env" when empty) and the
// environment. Environment variables win over the file.
func LoadConfig(envFile string) (Config, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing file is fine

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.StyleSources = splitList(cfg.StyleSources)
	cfg.FontSources = splitList(cfg.FontSources)
	cfg.ImageSources = splitList(cfg.ImageSources)
	cfg.DisabledCSP = splitList(cfg.DisabledCSP)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("config: FOLIO_ADDR must be set"))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: FOLIO_DB_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("config: FOLIO_DB_DSN must be set"))
	}
	if c.DBConnectAttempts == 0 {
		errs = append(errs, errors.New("config: FOLIO_DB_CONNECT_ATTEMPTS must be at least 1"))
	}
	if c.SessionTTL <= 0 || c.InvitationTTL <= 0 {
		errs = append(errs, errors.New("config: FOLIO_SESSION_TTL and FOLIO_INVITATION_TTL must be positive"))
	}
	if c.LoginAttempts <= 0 || c.LoginWindow <= 0 {
		errs = append(errs, errors.New("config: FOLIO_LOGIN_ATTEMPTS and FOLIO_LOGIN_WINDOW must be positive"))
	}
	if c.ReapProbability < 0 || c.ReapProbability > 1 {
		errs = append(errs, errors.New("config: FOLIO_REAP_PROBABILITY must be between 0 and 1"))
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, errors.New("config: FOLIO_SMTP_FROM is required when FOLIO_SMTP_HOST is set"))
	}
	return errors.Join(errs...)
}

// AcceptURL is the invitation acceptance page.
func (c Config) AcceptURL() string {
	return strings.TrimSuffix(c.PublicURL, "/") + "/invitations/accept"
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
