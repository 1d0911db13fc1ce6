package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL = "https://api-inference.modelscope.cn/v1"
	DefaultUploadURL  = "https://ai.kefan.cn/api/upload/local"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	SettingsPath       string
	TokenDir           string
	TokenEncryption    bool
	APIBaseURL         string
	UploadURL          string
	ChatBaseURL        string
	GeoIPDBPath        string
	DefaultLocale      string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	apiBase := strings.TrimRight(getEnv("MODELSCOPE_API_BASE", DefaultAPIBaseURL), "/")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		SettingsPath:       getEnv("SETTINGS_PATH", "modelscope_config.json"),
		TokenDir:           getEnv("TOKEN_DIR", "."),
		TokenEncryption:    getEnvBool("TOKEN_ENCRYPTION", true),
		APIBaseURL:         apiBase,
		UploadURL:          getEnv("UPLOAD_URL", DefaultUploadURL),
		ChatBaseURL:        strings.TrimRight(getEnv("CHAT_BASE_URL", apiBase), "/"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      strings.ToLower(getEnv("DEFAULT_LOCALE", "zh")),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		// Image jobs block for up to the poll deadline, so writes get a long budget.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 900)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if err := requireHTTPURL("MODELSCOPE_API_BASE", cfg.APIBaseURL); err != nil {
		return nil, err
	}
	if err := requireHTTPURL("UPLOAD_URL", cfg.UploadURL); err != nil {
		return nil, err
	}
	if cfg.TokenDir == "" {
		return nil, fmt.Errorf("TOKEN_DIR must not be empty")
	}

	return cfg, nil
}

func requireHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
