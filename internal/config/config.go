package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DispatcherGemini    = "gemini"
	DispatcherSimulator = "simulator"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr      string
	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string
	LogLevel        string

	AuthRequired    bool
	PaymentRequired bool
	JWTSecret       string
	JWTIssuer       string

	MaxFastVideosPerWeek    int
	MaxQualityVideosPerWeek int
	CreditsPerSubscription  int
	FastVideoCost           int
	QualityVideoCost        int
	GenerateRatePerMinute   int

	Dispatcher            string
	DispatchTimeout       time.Duration
	GeminiAPIKey          string
	GeminiAPIURL          string
	GeminiFastModel       string
	GeminiQualityModel    string
	GeminiTemperature     float64
	GeminiMaxTokens       int
	SimulatedFastDelay    time.Duration
	SimulatedQualityDelay time.Duration

	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	CacheTTL      time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	StripeSuccessURL    string
	StripeCancelURL     string
	PaymentCurrency     string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying the defaults of the
// original deployment.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models"

	cfg := Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":"+getEnv("PORT", "3000")),
		AdminListenAddr: getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "change-me"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		AuthRequired:    getBool("AUTH_REQUIRED", true),
		PaymentRequired: getBool("PAYMENT_REQUIRED", true),
		JWTIssuer:       os.Getenv("JWT_ISSUER"),

		MaxFastVideosPerWeek:    getInt("MAX_FAST_VIDEOS_PER_WEEK", 4),
		MaxQualityVideosPerWeek: getInt("MAX_QUALITY_VIDEOS_PER_WEEK", 1),
		CreditsPerSubscription:  getInt("CREDITS_PER_SUBSCRIPTION", 950),
		FastVideoCost:           getInt("FAST_VIDEO_COST", 80),
		QualityVideoCost:        getInt("QUALITY_VIDEO_COST", 150),
		GenerateRatePerMinute:   getInt("GENERATE_RATE_PER_MINUTE", 10),

		Dispatcher:            strings.ToLower(getEnv("DISPATCHER", DispatcherGemini)),
		DispatchTimeout:       getDuration("DISPATCH_TIMEOUT", 5*time.Minute),
		GeminiAPIURL:          normalizeBaseURL(getEnv("GEMINI_API_URL", defaultGeminiURL), defaultGeminiURL),
		GeminiFastModel:       getEnv("GEMINI_FAST_MODEL", "veo-3.0-fast-generate-001"),
		GeminiQualityModel:    getEnv("GEMINI_QUALITY_MODEL", "veo-3.0-generate-001"),
		GeminiTemperature:     getFloat("GEMINI_TEMPERATURE", 0.7),
		GeminiMaxTokens:       getInt("GEMINI_MAX_TOKENS", 8192),
		SimulatedFastDelay:    getDuration("SIMULATED_FAST_DELAY", 3*time.Second),
		SimulatedQualityDelay: getDuration("SIMULATED_QUALITY_DELAY", 6*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		LockTTL:       getDuration("LOCK_TTL", 30*time.Second),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		StripePriceID:    getEnv("STRIPE_PRICE_ID", os.Getenv("SUBSCRIPTION_PRICE_ID")),
		StripeSuccessURL: getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/?session_id={CHECKOUT_SESSION_ID}"),
		StripeCancelURL:  getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/"),
		PaymentCurrency:  strings.ToLower(getEnv("CURRENCY", "INR")),

		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "videos"),
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch c.Dispatcher {
	case DispatcherGemini:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case DispatcherSimulator:
	default:
		return fmt.Errorf("unsupported dispatcher: %s", c.Dispatcher)
	}
	if c.PaymentRequired {
		if c.StripeSecretKey == "" {
			missing = append(missing, "STRIPE_SECRET_KEY")
		}
		if c.StripeWebhookSecret == "" {
			missing = append(missing, "STRIPE_WEBHOOK_SECRET")
		}
		if c.StripePriceID == "" {
			missing = append(missing, "STRIPE_PRICE_ID")
		}
	}
	if c.S3Enabled() {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	if c.FastVideoCost < 0 || c.QualityVideoCost < 0 {
		return fmt.Errorf("video costs must not be negative")
	}
	if c.MaxFastVideosPerWeek < 0 || c.MaxQualityVideosPerWeek < 0 {
		return fmt.Errorf("weekly limits must not be negative")
	}
	if c.CreditsPerSubscription < 0 {
		return fmt.Errorf("credits per subscription must not be negative")
	}
	return nil
}

// S3Enabled reports whether inline videos can be archived to object storage.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// normalizeBaseURL strips trailing slashes and defaults the scheme to https.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return fallback
		}
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// loadEnvFile loads the first env file found. A missing file is not an error:
// deployments usually pass configuration through the process environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
