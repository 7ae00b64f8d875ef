package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPortalURL = "https://www.snirh.gov.br/hidroweb/serieshistoricas"
	baseFolderName   = "Estações_Hidroweb"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresTable    string

	StatementTimeout time.Duration
	SampleSize       int

	BaseDir    string
	ScratchDir string

	PortalURL string
	ChromeBin string
	Headless  bool
	MaxPasses int

	ExtractWorkers int

	S3Bucket  string
	S3Prefix  string
	AWSRegion string

	LogFile  string
	LogDebug bool

	Timeouts Timeouts
}

// Timeouts bounds every wait of the browser-driven downloader.
type Timeouts struct {
	Navigate        time.Duration
	NavigateRetry   time.Duration
	SearchInput     time.Duration
	ResultsTable    time.Duration
	StationCell     time.Duration
	DownloadStart   time.Duration
	DownloadFinish  time.Duration
	FileStable      time.Duration
	FilePoll        time.Duration
	StableWindow    time.Duration
	ValidationTries int
}

// Load reads the .env file and returns a populated Config struct. Database
// fields fall back to the saved connection profile before the built-in defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	base := getEnv("HIDROWEB_BASE_DIR", defaultBaseDir())

	profile, err := LoadProfile(ProfilePath(base))
	if err != nil {
		log.Printf("[config] Ignoring connection profile: %v", err)
		profile = &Profile{}
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", firstNonEmpty(profile.Host, "localhost")),
		PostgresPort:     getEnv("POSTGRES_PORT", firstNonEmpty(profile.Port, "5432")),
		PostgresUser:     getEnv("POSTGRES_USER", firstNonEmpty(profile.User, "postgres")),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", firstNonEmpty(profile.Database, "sipam_hidro")),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTable:    getEnv("POSTGRES_TABLE", profile.Table),

		StatementTimeout: getEnvDuration("POSTGRES_STATEMENT_TIMEOUT", 600*time.Second),
		SampleSize:       getEnvInt("LOADER_SAMPLE_SIZE", 100),

		BaseDir:    base,
		ScratchDir: getEnv("HIDROWEB_SCRATCH_DIR", filepath.Join(base, ".tmp")),

		PortalURL: getEnv("HIDROWEB_PORTAL_URL", DefaultPortalURL),
		ChromeBin: getEnv("CHROME_BIN", ""),
		Headless:  getEnvBool("HIDROWEB_HEADLESS", true),
		MaxPasses: getEnvInt("HIDROWEB_MAX_PASSES", 3),

		ExtractWorkers: getEnvInt("EXTRACT_WORKERS", 4),

		S3Bucket:  getEnv("HIDROWEB_S3_BUCKET", ""),
		S3Prefix:  getEnv("HIDROWEB_S3_PREFIX", "hidroweb/"),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		LogFile:  getEnv("LOG_FILE", filepath.Join(base, "Scripts", "dados", "hidroweb.log")),
		LogDebug: getEnvBool("LOG_DEBUG", false),

		Timeouts: DefaultTimeouts(),
	}
}

// DefaultTimeouts returns the waits used against the portal.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate:        6 * time.Second,
		NavigateRetry:   12 * time.Second,
		SearchInput:     1500 * time.Millisecond,
		ResultsTable:    3 * time.Second,
		StationCell:     2 * time.Second,
		DownloadStart:   8 * time.Second,
		DownloadFinish:  30 * time.Second,
		FileStable:      5 * time.Second,
		FilePoll:        30 * time.Millisecond,
		StableWindow:    100 * time.Millisecond,
		ValidationTries: 2,
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	parts := []string{
		"host=" + c.PostgresHost,
		"port=" + c.PostgresPort,
		"user=" + c.PostgresUser,
		"dbname=" + c.PostgresDB,
		"sslmode=" + c.PostgresSSLMode,
	}
	if c.PostgresPassword != "" {
		parts = append(parts, "password="+quoteDSN(c.PostgresPassword))
	}
	return strings.Join(parts, " ")
}

// MainDir is the "principal" destination folder.
func (c *Config) MainDir() string { return c.BaseDir }

// ConsultadasDir holds archives downloaded for ad-hoc lookups.
func (c *Config) ConsultadasDir() string { return filepath.Join(c.BaseDir, "Consultadas") }

// DataDir holds logs, the connection profile and consolidated datasets.
func (c *Config) DataDir() string { return filepath.Join(c.BaseDir, "Scripts", "dados") }

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return baseFolderName
	}
	return filepath.Join(home, "Downloads", baseFolderName)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
