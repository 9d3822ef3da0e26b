package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath          string
	DBBusyTimeoutMS int

	UploadDir string

	ServerPort string

	JWTSecret         string
	AccessTokenMaxAge int

	ImageQueueSize    int
	ImageWorkers      int
	ImageTargetWidth  int
	ImageTargetHeight int

	FeedPageSize int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	return &Config{
		DBPath:          getEnv("DB_PATH", "postboard.db"),
		DBBusyTimeoutMS: positiveInt("DB_BUSY_TIMEOUT_MS", 60000),

		UploadDir: getEnv("UPLOAD_DIR", "./images"),

		ServerPort: getEnv("SERVER_PORT", "8080"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenMaxAge: positiveInt("ACCESS_TOKEN_MAX_AGE", 86400),

		ImageQueueSize:    positiveInt("IMAGE_QUEUE_SIZE", 64),
		ImageWorkers:      positiveInt("IMAGE_WORKERS", 2),
		ImageTargetWidth:  positiveInt("IMAGE_TARGET_WIDTH", 256),
		ImageTargetHeight: positiveInt("IMAGE_TARGET_HEIGHT", 256),

		FeedPageSize: positiveInt("FEED_PAGE_SIZE", 10),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),
	}, nil
}

// R2Configured reports whether every setting needed by the attachment mirror is present.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicURL != ""
}

// getEnv reads a string env var, falling back when unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// positiveInt reads an integer env var, falling back when unset, malformed or <= 0.
func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
