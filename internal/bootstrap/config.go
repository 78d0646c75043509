package bootstrap

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	// ServiceBaseURL points at the conversational service that answers
	// voice turns and serves narration chunk audio.
	ServiceBaseURL string

	Platform string

	DesktopMinBytes int
	MobileMinBytes  int

	TurnTimeout  time.Duration
	ChunkTimeout time.Duration
	FetchDelay   time.Duration
	MicRetry     time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		ServiceBaseURL: getEnv("SERVICE_BASE_URL", "http://localhost:3000"),

		Platform: getEnv("PLATFORM", "desktop"),

		DesktopMinBytes: getEnvInt("DESKTOP_MIN_BYTES", 4096),
		MobileMinBytes:  getEnvInt("MOBILE_MIN_BYTES", 1024),

		TurnTimeout:  getEnvDuration("TURN_TIMEOUT", 60*time.Second),
		ChunkTimeout: getEnvDuration("CHUNK_TIMEOUT", 30*time.Second),
		FetchDelay:   getEnvDuration("CHUNK_FETCH_DELAY", 150*time.Millisecond),
		MicRetry:     getEnvDuration("MIC_RETRY_DELAY", 300*time.Millisecond),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
