package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	FilesDir  string
	OutputDir string

	GeminiAPIKey       string
	GeminiModel        string
	GeminiTimeoutMs    int
	GeminiRateLimitRPS int
	CostPer1KTokens    float64
	PDFMultimodal      bool
	TabularCharBudget  int

	SearchURL         string
	SearchAPIKey      string
	SearchIndexPrefix string

	MatchThreshold    float64
	AnomalySpreadPct  float64
	MinSpreadPct      float64
	DefaultConfidence float64
	LocalScanLimit    int
	PairScanCap       int
	PairEarlyStop     float64

	MailCompanyID string
	MailProvider  string
	MailMailbox   string
	MailFetchMax  int
	MailMarkSeen  bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string

	ListenerIntervalSec  int
	ListenerProcessBatch int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		FilesDir:  getEnv("FILES_DIR", filepath.Join(cwd, "data", "files")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTimeoutMs:    getEnvInt("GEMINI_TIMEOUT_MS", 60000),
		GeminiRateLimitRPS: getEnvInt("GEMINI_RATE_LIMIT_RPS", 2),
		CostPer1KTokens:    getEnvFloat("COST_PER_1K_TOKENS", 0.00015),
		PDFMultimodal:      getEnvBool("PDF_MULTIMODAL", false),
		TabularCharBudget:  getEnvInt("TABULAR_CHAR_BUDGET", 12000),

		SearchURL:         getEnv("SEARCH_URL", ""),
		SearchAPIKey:      getEnv("SEARCH_API_KEY", ""),
		SearchIndexPrefix: getEnv("SEARCH_INDEX_PREFIX", "catalogo"),

		MatchThreshold:    getEnvFloat("MATCH_THRESHOLD", 0.70),
		AnomalySpreadPct:  getEnvFloat("ANOMALY_SPREAD_PCT", 50),
		MinSpreadPct:      getEnvFloat("MIN_SPREAD_PCT", 5),
		DefaultConfidence: getEnvFloat("DEFAULT_CONFIDENCE", 85),
		LocalScanLimit:    getEnvInt("LOCAL_SCAN_LIMIT", 500),
		PairScanCap:       getEnvInt("PAIR_SCAN_CAP", 40),
		PairEarlyStop:     getEnvFloat("PAIR_EARLY_STOP", 0.93),

		MailCompanyID: getEnv("MAIL_COMPANY_ID", ""),
		MailProvider:  getEnv("MAIL_PROVIDER", "imap"),
		MailMailbox:   getEnv("MAIL_MAILBOX", "INBOX"),
		MailFetchMax:  getEnvInt("MAIL_FETCH_MAX", 20),
		MailMarkSeen:  getEnvBool("MAIL_MARK_SEEN", false),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 60),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 10),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
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
