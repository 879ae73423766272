package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds shared runtime configuration for the API and worker services.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JobTTL    time.Duration
	UploadDir string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	Engine       string
	WhisperBin   string
	WhisperModel string
	FFmpegBin    string
	OpenAIAPIKey string

	TranscriptExport  string
	ExportDir         string
	ExportS3Bucket    string
	ExportS3Region    string
	ExportS3Endpoint  string
	ExportS3PathStyle bool

	PostgresDSN string

	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from the environment with sane defaults for
// local development. A .env file in the working directory is honored when
// present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnv("HTTP_PORT", "8000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 3),

		JobTTL:    getEnvDuration("JOB_TTL", 24*time.Hour),
		UploadDir: getEnv("UPLOAD_DIR", "./recordings"),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),

		Engine:       getEnv("TRANSCRIBE_ENGINE", "whisper"),
		WhisperBin:   getEnv("WHISPER_BIN", "whisper-worker"),
		WhisperModel: getEnv("WHISPER_MODEL", "base"),
		FFmpegBin:    getEnv("FFMPEG_BIN", "ffmpeg"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		TranscriptExport:  getEnv("TRANSCRIPT_EXPORT", "none"),
		ExportDir:         getEnv("EXPORT_DIR", "./transcripts"),
		ExportS3Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3Region:    getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3PathStyle: getEnvBool("EXPORT_S3_PATH_STYLE", false),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 50),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 20),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
