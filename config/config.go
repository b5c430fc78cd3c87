package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	PublicBaseURL  string
	MaxUploadBytes int64

	UploadDir string
	OutputDir string

	StoreDriver string
	DatabaseURL string
	JobsDBPath  string
	FailuresDB  string

	BlobDriver   string
	BlobDir      string
	UploadBucket string
	OutputBucket string

	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string
	S3UsePathStyle bool

	GCSCredentialsFile string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string

	SFTPHost       string
	SFTPPort       string
	SFTPUser       string
	SFTPPassword   string
	SFTPPrivateKey string
	SFTPRoot       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	GotenbergURL  string
	OfficeTimeout time.Duration

	WorkerCount        int
	WorkerPollInterval time.Duration
	ShutdownTimeout    time.Duration

	SigningSecret string
	SignedURLTTL  time.Duration

	LogLevel string
	LogFile  string

	Tools Tools
}

// Tools holds the executable names of the external encoders.
type Tools struct {
	Magick   string
	FFmpeg   string
	GS       string
	PDFToPPM string
	Soffice  string
	Rsvg     string
}

func Load() *Config {
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "transmute")
	dbUser := getEnv("DB_USERNAME", "transmute")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq "key=value" form avoids URI escaping of special characters in passwords.
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		dbURL = fmt.Sprintf("host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode)
		if dbPassword != "" {
			dbURL += fmt.Sprintf(" password=%s", dbPassword)
		}
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 512<<20),

		UploadDir: GetUploadDir(),
		OutputDir: GetOutputDir(),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "pebble")),
		DatabaseURL: dbURL,
		JobsDBPath:  GetJobsDBPath(),
		FailuresDB:  GetFailuresDBPath(),

		BlobDriver:   strings.ToLower(getEnv("BLOB_DRIVER", "local")),
		BlobDir:      GetBlobDir(),
		UploadBucket: getEnv("UPLOAD_BUCKET", "transmute-upload"),
		OutputBucket: getEnv("OUTPUT_BUCKET", "transmute-output"),

		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		S3AccessKey:    getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:    getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),

		GCSCredentialsFile: getEnvWithFallback("GCS_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS", ""),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", ""),

		SFTPHost:       getEnv("SFTP_HOST", ""),
		SFTPPort:       getEnv("SFTP_PORT", "22"),
		SFTPUser:       getEnv("SFTP_USER", ""),
		SFTPPassword:   getEnv("SFTP_PASSWORD", ""),
		SFTPPrivateKey: getEnv("SFTP_PRIVATE_KEY", ""),
		SFTPRoot:       getEnv("SFTP_ROOT", "/srv/transmute"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "transmute:"),

		GotenbergURL:  strings.TrimRight(getEnv("GOTENBERG_URL", ""), "/"),
		OfficeTimeout: getEnvDuration("OFFICE_TIMEOUT", 120*time.Second),

		WorkerCount:        getEnvInt("WORKER_COUNT", 1),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		SigningSecret: getEnv("SIGNING_SECRET", ""),
		SignedURLTTL:  getEnvDuration("SIGNED_URL_TTL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		Tools: Tools{
			Magick:   getEnv("MAGICK_PATH", "magick"),
			FFmpeg:   getEnv("FFMPEG_PATH", "ffmpeg"),
			GS:       getEnv("GS_PATH", "gs"),
			PDFToPPM: getEnv("PDFTOPPM_PATH", "pdftoppm"),
			Soffice:  getEnv("SOFFICE_PATH", "soffice"),
			Rsvg:     getEnv("RSVG_PATH", "rsvg-convert"),
		},
	}
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "pebble", "postgres":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.BlobDriver {
	case "local", "s3", "gcs", "minio", "sftp":
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}
	if c.BlobDriver == "sftp" && (c.SFTPHost == "" || c.SFTPUser == "") {
		return fmt.Errorf("BLOB_DRIVER=sftp requires SFTP_HOST and SFTP_USER")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
