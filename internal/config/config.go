package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr        string
	DBPath            string
	UploadPath        string
	LogLevel          string
	LogFile           string
	LogFormat         string
	JWTSecret         string
	TokenTTL          time.Duration
	AdminPassword     string
	CORSOrigins       []string
	LowStockThreshold int
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory are used only for keys the environment does not set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":3000"),
		DBPath:            getEnv("DB_PATH", "/data/partsledger.db"),
		UploadPath:        getEnv("UPLOAD_PATH", "/data/uploads"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           getEnv("LOG_FILE", ""),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		JWTSecret:         getEnv("JWT_SECRET", "change-me"),
		TokenTTL:          getDuration("TOKEN_TTL", 24*time.Hour),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "admin123"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		LowStockThreshold: getInt("LOW_STOCK_THRESHOLD", 5),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
