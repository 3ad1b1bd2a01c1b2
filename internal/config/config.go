package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvLogLevel = "LOG_LEVEL"

	EnvAPIBaseURL     = "CARELINK_API_URL"
	EnvAppURL         = "CARELINK_APP_URL"
	EnvRequestTimeout = "CARELINK_REQUEST_TIMEOUT"
	EnvLeaveTimeout   = "CARELINK_LEAVE_TIMEOUT"
	EnvTimezone       = "PRIMARY_TIMEZONE"

	EnvCredentialStore = "CREDENTIAL_STORE"
	EnvCredentialFile  = "CREDENTIAL_FILE"
	EnvSQLitePath      = "CREDENTIAL_SQLITE_PATH"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRedisPrefix     = "REDIS_KEY_PREFIX"

	EnvSchedulerBackend   = "SCHEDULER_BACKEND"
	EnvGoogleClientID     = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvGoogleCalendarID   = "GOOGLE_CALENDAR_ID"
	EnvCallbackAddr       = "OAUTH_CALLBACK_ADDR"

	EnvCalDAVEndpoint = "CALDAV_ENDPOINT"
	EnvCalDAVUsername = "ICLOUD_USERNAME"
	EnvCalDAVPassword = "ICLOUD_APP_SPECIFIC_PASSWORD"
	EnvCalDAVCalendar = "ICLOUD_CALENDAR_NAME"
	EnvPublishState   = "PUBLISH_STATE_FILE"
)

const (
	DefaultLogLevel       = "info"
	DefaultAPIBaseURL     = "http://localhost:5000"
	DefaultAppURL         = "http://localhost:3000"
	DefaultRequestTimeout = 10 * time.Second
	DefaultLeaveTimeout   = 5 * time.Second
	DefaultTimezone       = "UTC"

	DefaultCredentialStore = StoreFile
	DefaultCredentialFile  = "carelink-credentials.json"
	DefaultSQLitePath      = "carelink.db"
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "carelink:"

	DefaultSchedulerBackend = BackendAPI
	DefaultGoogleCalendarID = "primary"
	DefaultCallbackAddr     = "localhost:8080"

	DefaultCalDAVEndpoint = "https://caldav.icloud.com/"
	DefaultPublishState   = "publish-state.json"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	BackendAPI    = "api"
	BackendGoogle = "google"
)

// Config holds the application configuration read from the environment.
type Config struct {
	LogLevel string

	APIBaseURL     string
	AppURL         string
	RequestTimeout time.Duration
	LeaveTimeout   time.Duration
	Location       *time.Location

	CredentialStore string
	CredentialFile  string
	SQLitePath      string
	RedisAddr       string
	RedisPassword   string
	RedisPrefix     string

	SchedulerBackend   string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCalendarID   string
	CallbackAddr       string

	CalDAVEndpoint string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
	PublishState   string
}

// Load reads the configuration from the environment. Call godotenv.Load
// before it to pick up a .env file.
func Load() (*Config, error) {
	tz := getEnvStr(EnvTimezone, DefaultTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tz, err)
	}

	cfg := &Config{
		LogLevel: getEnvStr(EnvLogLevel, DefaultLogLevel),

		APIBaseURL:     strings.TrimSuffix(getEnvStr(EnvAPIBaseURL, DefaultAPIBaseURL), "/"),
		AppURL:         strings.TrimSuffix(getEnvStr(EnvAppURL, DefaultAppURL), "/"),
		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		LeaveTimeout:   getEnvDuration(EnvLeaveTimeout, DefaultLeaveTimeout),
		Location:       loc,

		CredentialStore: strings.ToLower(getEnvStr(EnvCredentialStore, DefaultCredentialStore)),
		CredentialFile:  getEnvStr(EnvCredentialFile, DefaultCredentialFile),
		SQLitePath:      getEnvStr(EnvSQLitePath, DefaultSQLitePath),
		RedisAddr:       getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:   getEnvStr(EnvRedisPassword, ""),
		RedisPrefix:     getEnvStr(EnvRedisPrefix, DefaultRedisPrefix),

		SchedulerBackend:   strings.ToLower(getEnvStr(EnvSchedulerBackend, DefaultSchedulerBackend)),
		GoogleClientID:     getEnvStr(EnvGoogleClientID, ""),
		GoogleClientSecret: getEnvStr(EnvGoogleClientSecret, ""),
		GoogleCalendarID:   getEnvStr(EnvGoogleCalendarID, DefaultGoogleCalendarID),
		CallbackAddr:       getEnvStr(EnvCallbackAddr, DefaultCallbackAddr),

		CalDAVEndpoint: getEnvStr(EnvCalDAVEndpoint, DefaultCalDAVEndpoint),
		CalDAVUsername: getEnvStr(EnvCalDAVUsername, ""),
		CalDAVPassword: getEnvStr(EnvCalDAVPassword, ""),
		CalDAVCalendar: getEnvStr(EnvCalDAVCalendar, ""),
		PublishState:   getEnvStr(EnvPublishState, DefaultPublishState),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	var errs []string

	for name, raw := range map[string]string{EnvAPIBaseURL: cfg.APIBaseURL, EnvAppURL: cfg.AppURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute URL, got: %q", name, raw))
		}
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.LeaveTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("LeaveTimeout must be positive, got: %s", cfg.LeaveTimeout))
	}
	switch cfg.CredentialStore {
	case StoreFile, StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Sprintf("CredentialStore must be one of file, sqlite, redis, got: %q", cfg.CredentialStore))
	}
	switch cfg.SchedulerBackend {
	case BackendAPI:
	case BackendGoogle:
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			errs = append(errs, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for the google scheduler backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("SchedulerBackend must be api or google, got: %q", cfg.SchedulerBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HistoryURL is where the user lands once a session has ended.
func (cfg *Config) HistoryURL() string {
	return cfg.AppURL + "/appointment-history"
}

// AppointmentsURL is the retry target shown when joining fails.
func (cfg *Config) AppointmentsURL() string {
	return cfg.AppURL + "/appointments"
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
