package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"password_expiry_notifier/internal/domain/notification"
	"password_expiry_notifier/internal/infra/database"
	"password_expiry_notifier/internal/infra/locale"
	"password_expiry_notifier/internal/infra/report"
)

// Directory sources.
const (
	DirectoryLDAP = "ldap"
	DirectoryCSV  = "csv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// AppConfig holds all configuration for the notifier.
type AppConfig struct {
	RunMode notification.RunMode

	SMTPHost         string
	SMTPPort         int
	SMTPFrom         string
	SMTPUsername     string
	SMTPPassword     string
	SMTPStartTLS     bool
	SMTPMaxPerSecond float64 // 0 disables pacing

	SimulationRecipients []string
	SendQuota            int // 0 means unlimited

	Locales           []locale.Tag
	Condition         notification.Condition
	GroupFilter       string
	InternalDomains   []string
	PasswordChangeURL string
	OrganizationName  string

	ReportDir      string // empty disables the CSV report
	ReportEncoding report.Encoding

	LedgerBackend database.Backend
	LedgerDir     string
	LedgerDSN     string

	DirectorySource  string
	LDAPURL          string
	LDAPBindDN       string
	LDAPBindPassword string
	LDAPBaseDN       string
	DirectoryCSV     string

	LogLevel    string
	Environment string
	LogFile     string // CMTrace-formatted copy of the log, optional

	CronSpec string // empty means run once and exit

	TelegramToken         string
	TelegramSummaryChatID int64
}

// Overrides are values given on the command line; they win over the environment.
type Overrides struct {
	EnvFile string
	RunMode string
	Once    bool
}

// Load reads configuration from environment variables and a .env file (if present).
func Load(o Overrides) (*AppConfig, error) {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", o.EnvFile, err)
		}
	} else {
		// godotenv.Load does not override variables already set.
		_ = godotenv.Load()
	}

	cfg := &AppConfig{}
	var err error

	mode := o.RunMode
	if mode == "" {
		mode = getEnv("RUN_MODE", string(notification.RunModeSimulate))
	}
	cfg.RunMode = notification.RunMode(strings.ToLower(mode))
	switch cfg.RunMode {
	case notification.RunModeLive, notification.RunModeSimulate, notification.RunModeReportOnly:
	default:
		return nil, invalid("RUN_MODE must be live, simulate or report, got %q", mode)
	}
	sends := cfg.RunMode != notification.RunModeReportOnly

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if sends && cfg.SMTPHost == "" {
		return nil, invalid("SMTP_HOST is not set")
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 25); err != nil {
		return nil, err
	}
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if sends {
		if cfg.SMTPFrom == "" {
			return nil, invalid("SMTP_FROM is not set")
		}
		if _, err := mail.ParseAddress(cfg.SMTPFrom); err != nil {
			return nil, invalid("SMTP_FROM %q is not a valid address: %v", cfg.SMTPFrom, err)
		}
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if cfg.SMTPStartTLS, err = getBool("SMTP_STARTTLS", false); err != nil {
		return nil, err
	}
	if raw := os.Getenv("SMTP_MAX_PER_SECOND"); raw != "" {
		cfg.SMTPMaxPerSecond, err = strconv.ParseFloat(raw, 64)
		if err != nil || cfg.SMTPMaxPerSecond < 0 {
			return nil, invalid("invalid SMTP_MAX_PER_SECOND %q", raw)
		}
	}

	cfg.SimulationRecipients = getList("SIMULATION_RECIPIENTS")
	if cfg.RunMode == notification.RunModeSimulate && len(cfg.SimulationRecipients) == 0 {
		return nil, invalid("SIMULATION_RECIPIENTS is required in simulate mode")
	}
	for _, r := range cfg.SimulationRecipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return nil, invalid("SIMULATION_RECIPIENTS entry %q is not a valid address", r)
		}
	}
	if cfg.SendQuota, err = getInt("SEND_QUOTA", 0); err != nil {
		return nil, err
	}
	if cfg.SendQuota < 0 {
		return nil, invalid("SEND_QUOTA must not be negative")
	}

	cfg.Locales, err = locale.ParseList(getEnv("LOCALES", string(locale.English)))
	if err != nil {
		return nil, fmt.Errorf("%w: LOCALES: %v", ErrInvalidConfig, err)
	}

	if cfg.Condition, err = loadCondition(); err != nil {
		return nil, err
	}

	cfg.GroupFilter = strings.TrimSpace(os.Getenv("GROUP_FILTER"))
	cfg.InternalDomains = getList("INTERNAL_DOMAINS")
	cfg.PasswordChangeURL = os.Getenv("PASSWORD_CHANGE_URL")
	cfg.OrganizationName = getEnv("ORGANIZATION_NAME", "IT")

	cfg.ReportDir = os.Getenv("REPORT_DIR")
	if cfg.RunMode == notification.RunModeReportOnly && cfg.ReportDir == "" {
		return nil, invalid("REPORT_DIR is required in report mode")
	}
	if cfg.ReportEncoding, err = report.ParseEncoding(os.Getenv("REPORT_ENCODING")); err != nil {
		return nil, fmt.Errorf("%w: REPORT_ENCODING: %v", ErrInvalidConfig, err)
	}

	cfg.LedgerBackend = database.Backend(strings.ToLower(getEnv("LEDGER_BACKEND", string(database.BackendFile))))
	cfg.LedgerDir = getEnv("LEDGER_DIR", ".")
	cfg.LedgerDSN = os.Getenv("LEDGER_DSN")
	switch cfg.LedgerBackend {
	case database.BackendFile, database.BackendBolt, database.BackendSQLite:
	case database.BackendPostgres:
		if cfg.LedgerDSN == "" {
			return nil, invalid("LEDGER_DSN is required for the postgres ledger")
		}
	default:
		return nil, invalid("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	cfg.DirectorySource = strings.ToLower(getEnv("DIRECTORY_SOURCE", DirectoryLDAP))
	switch cfg.DirectorySource {
	case DirectoryLDAP:
		cfg.LDAPURL = os.Getenv("LDAP_URL")
		cfg.LDAPBaseDN = os.Getenv("LDAP_BASE_DN")
		cfg.LDAPBindDN = os.Getenv("LDAP_BIND_DN")
		cfg.LDAPBindPassword = os.Getenv("LDAP_BIND_PASSWORD")
		if cfg.LDAPURL == "" || cfg.LDAPBaseDN == "" {
			return nil, invalid("LDAP_URL and LDAP_BASE_DN are required for the ldap directory")
		}
	case DirectoryCSV:
		cfg.DirectoryCSV = os.Getenv("DIRECTORY_CSV")
		if cfg.DirectoryCSV == "" {
			return nil, invalid("DIRECTORY_CSV is required for the csv directory")
		}
	default:
		return nil, invalid("unknown DIRECTORY_SOURCE %q", cfg.DirectorySource)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.LogFile = os.Getenv("LOG_FILE")

	if !o.Once {
		cfg.CronSpec = os.Getenv("CRON_SPEC")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if raw := os.Getenv("TELEGRAM_SUMMARY_CHAT_ID"); raw != "" {
		cfg.TelegramSummaryChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, invalid("invalid TELEGRAM_SUMMARY_CHAT_ID: %v", err)
		}
		if cfg.TelegramToken == "" {
			return nil, invalid("TELEGRAM_TOKEN is required when TELEGRAM_SUMMARY_CHAT_ID is set")
		}
	}

	return cfg, nil
}

func loadCondition() (notification.Condition, error) {
	c := notification.Condition{
		Mode: notification.Mode(strings.ToLower(getEnv("CONDITION_MODE", string(notification.ModeDaysBeforeExpire)))),
	}
	var err error

	switch c.Mode {
	case notification.ModeDaysBeforeExpire:
		if os.Getenv("DAYS_BEFORE_EXPIRE") == "" {
			return c, invalid("DAYS_BEFORE_EXPIRE is required for condition mode %s", c.Mode)
		}
		if c.DaysThreshold, err = getInt("DAYS_BEFORE_EXPIRE", 0); err != nil {
			return c, err
		}
	case notification.ModeDaysInterval:
		for _, part := range getList("DAYS_INTERVAL") {
			d, err := strconv.Atoi(part)
			if err != nil {
				return c, invalid("invalid DAYS_INTERVAL entry %q", part)
			}
			c.IntervalDays = append(c.IntervalDays, d)
		}
	}

	if c.NotifyNewUsers, err = getBool("NOTIFY_NEW_USERS", false); err != nil {
		return c, err
	}
	days, err := getInt("NEW_USER_EXPIRY_DAYS", 5)
	if err != nil {
		return c, err
	}
	c.NewUserExpiry = time.Duration(days) * 24 * time.Hour

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("invalid %s %q", key, raw)
	}
	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid("invalid %s %q", key, raw)
	}
	return v, nil
}

// getList splits a comma-separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
