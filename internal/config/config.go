package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"wegtop/internal/ingest"
	"wegtop/internal/tops"
)

type Config struct {
	DBPath        string
	InboxDir      string
	OutputDir     string
	RawMailDir    string
	AttachmentDir string

	RulesPath      string
	DetailMinChars int
	ExcerptChars   int

	Workers  int
	FailFast bool

	MinAvgChars     float64
	LayoutEnabled   bool
	LayoutGainRatio float64
	OCREnabled      bool
	OCRDPI          int
	OCRLang         string
	OCRMaxPages     int
	OCRGainRatio    float64
	OCRMinChars     float64
	OCRAttempts     int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	ListenerProvider    string
	ListenerLabel       string
	ListenerIntervalSec int
	ListenerSchedule    string
	ListenerFetchMax    int
	ListenerWatchInbox  bool

	SlackWebhookURL string

	HTTPAddr       string
	APIKey         string
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:        getEnv("DB_PATH", filepath.Join(cwd, "data", "wegtop.db")),
		InboxDir:      getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir:     getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		RawMailDir:    getEnv("RAW_MAIL_DIR", filepath.Join(cwd, "data", "raw")),
		AttachmentDir: getEnv("ATTACHMENT_DIR", filepath.Join(cwd, "data", "attachments")),

		RulesPath:      getEnv("RULES_PATH", ""),
		DetailMinChars: getEnvInt("DETAIL_MIN_CHARS", tops.DefaultDetailMinChars),
		ExcerptChars:   getEnvInt("EXCERPT_CHARS", tops.DefaultExcerptChars),

		Workers:  getEnvInt("WORKERS", runtime.NumCPU()),
		FailFast: getEnvBool("FAIL_FAST", false),

		MinAvgChars:     getEnvFloat("MIN_AVG_CHARS", 250),
		LayoutEnabled:   getEnvBool("LAYOUT_ENABLED", true),
		LayoutGainRatio: getEnvFloat("LAYOUT_GAIN_RATIO", 1.2),
		OCREnabled:      getEnvBool("OCR_ENABLED", true),
		OCRDPI:          getEnvInt("OCR_DPI", 140),
		OCRLang:         getEnv("OCR_LANG", "deu+eng"),
		OCRMaxPages:     getEnvInt("OCR_MAX_PAGES", 0),
		OCRGainRatio:    getEnvFloat("OCR_GAIN_RATIO", 1.5),
		OCRMinChars:     getEnvFloat("OCR_MIN_CHARS", 200),
		OCRAttempts:     getEnvInt("OCR_ATTEMPTS", 2),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		ListenerProvider:    getEnv("LISTENER_PROVIDER", "imap"),
		ListenerLabel:       getEnv("LISTENER_LABEL", "INBOX"),
		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 300),
		ListenerSchedule:    getEnv("LISTENER_SCHEDULE", ""),
		ListenerFetchMax:    getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerWatchInbox:  getEnvBool("LISTENER_WATCH_INBOX", true),

		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		APIKey:         getEnv("API_KEY", ""),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	cfg.clamp()
	return cfg, nil
}

func (c *Config) clamp() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.DetailMinChars <= 0 {
		c.DetailMinChars = tops.DefaultDetailMinChars
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = tops.DefaultExcerptChars
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = 140
	}
	if c.OCRAttempts <= 0 {
		c.OCRAttempts = 1
	}
	if c.ListenerIntervalSec <= 0 {
		c.ListenerIntervalSec = 300
	}
	if c.ListenerFetchMax <= 0 {
		c.ListenerFetchMax = 20
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// EngineOptions loads the rule table and returns the TOP engine settings.
func (c Config) EngineOptions() (tops.Options, error) {
	rules, err := tops.LoadRules(c.RulesPath)
	if err != nil {
		return tops.Options{}, err
	}
	return tops.Options{Rules: rules, DetailMinChars: c.DetailMinChars, ExcerptChars: c.ExcerptChars}, nil
}

func (c Config) IngestOptions() ingest.Options {
	return ingest.Options{
		MinAvgChars:     c.MinAvgChars,
		LayoutEnabled:   c.LayoutEnabled,
		LayoutGainRatio: c.LayoutGainRatio,
		OCREnabled:      c.OCREnabled,
		OCRGainRatio:    c.OCRGainRatio,
		OCRMinChars:     c.OCRMinChars,
		OCRDPI:          c.OCRDPI,
		OCRLang:         c.OCRLang,
		OCRMaxPages:     c.OCRMaxPages,
		OCRAttempts:     c.OCRAttempts,
	}
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
