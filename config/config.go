package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration. Values come from an optional
// YAML file (CONFIG_FILE, default config/app.yaml), overridden by environment
// variables, which may in turn be loaded from a .env file.
type Config struct {
	// HTTP server
	Host string
	Port int

	// MinIO media store
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MediaPrefix    string // object prefix holding source media, e.g. "videos/"
	AudioPrefix    string // object prefix for extracted audio uploads
	PresignExpiry  time.Duration

	// ffmpeg extraction
	FFmpegPath string
	SampleRate int
	Channels   int

	// speech recognition service
	ASRBaseURL      string
	ASRAPIKey       string
	ASRModel        string
	ASRPollInterval time.Duration
	ASRMaxWait      time.Duration

	// persisted state
	StatusFile string
	ResultDir  string
	TempDir    string

	// logging
	LogLevel string
	LogPath  string
}

// yamlFile mirrors the optional config/app.yaml layout.
type yamlFile struct {
	App struct {
		Server struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
		} `yaml:"server"`
		Minio struct {
			Endpoint    string `yaml:"endpoint"`
			Bucket      string `yaml:"bucket"`
			Region      string `yaml:"region"`
			UseSSL      bool   `yaml:"use_ssl"`
			MediaPrefix string `yaml:"media_prefix"`
			AudioPrefix string `yaml:"audio_prefix"`
		} `yaml:"minio"`
		Audio struct {
			SampleRate int `yaml:"sample_rate"`
			Channels   int `yaml:"channels"`
		} `yaml:"audio"`
		ASR struct {
			BaseURL      string `yaml:"base_url"`
			Model        string `yaml:"model"`
			PollInterval int    `yaml:"poll_interval"` // seconds
			MaxWait      int    `yaml:"max_wait"`      // seconds
		} `yaml:"asr"`
		Files struct {
			StatusFile string `yaml:"status_file"`
			ResultDir  string `yaml:"result_dir"`
			TempDir    string `yaml:"temp_dir"`
		} `yaml:"files"`
		Logging struct {
			Level string `yaml:"level"`
			Path  string `yaml:"path"`
		} `yaml:"logging"`
	} `yaml:"app"`
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load builds the configuration. godotenv.Load does not override variables
// already present in the environment, so real env vars always win.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	var yf yamlFile
	yamlPath := getEnv("CONFIG_FILE", "config/app.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &yf); err != nil {
			log.Printf("Ignoring malformed config file %s: %v", yamlPath, err)
			yf = yamlFile{}
		}
	}

	app := yf.App

	cfg := &Config{
		Host:           getEnv("SERVER_HOST", orStr(app.Server.Host, "0.0.0.0")),
		Port:           getEnvInt("SERVER_PORT", orInt(app.Server.Port, 8093)),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", orStr(app.Minio.Endpoint, "127.0.0.1:9000")),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", orStr(app.Minio.Bucket, "media")),
		MinioRegion:    getEnv("MINIO_REGION", app.Minio.Region),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", app.Minio.UseSSL),
		MediaPrefix:    getEnv("MEDIA_PREFIX", orStr(app.Minio.MediaPrefix, "videos/")),
		AudioPrefix:    getEnv("AUDIO_PREFIX", orStr(app.Minio.AudioPrefix, "audio/")),
		PresignExpiry:  time.Duration(getEnvInt("PRESIGN_EXPIRY_MINUTES", 60)) * time.Minute,

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		SampleRate: getEnvInt("AUDIO_SAMPLE_RATE", orInt(app.Audio.SampleRate, 16000)),
		Channels:   getEnvInt("AUDIO_CHANNELS", orInt(app.Audio.Channels, 1)),

		ASRBaseURL:      getEnv("ASR_BASE_URL", orStr(app.ASR.BaseURL, "https://dashscope.aliyuncs.com/api/v1")),
		ASRAPIKey:       os.Getenv("ASR_API_KEY"),
		ASRModel:        getEnv("ASR_MODEL", orStr(app.ASR.Model, "fun-asr")),
		ASRPollInterval: time.Duration(getEnvInt("ASR_POLL_INTERVAL", orInt(app.ASR.PollInterval, 2))) * time.Second,
		ASRMaxWait:      time.Duration(getEnvInt("ASR_MAX_WAIT", orInt(app.ASR.MaxWait, 300))) * time.Second,

		StatusFile: getEnv("STATUS_FILE", orStr(app.Files.StatusFile, "data/status.json")),
		ResultDir:  getEnv("RESULT_DIR", orStr(app.Files.ResultDir, "data/output")),
		TempDir:    getEnv("TEMP_DIR", orStr(app.Files.TempDir, "data/temp")),

		LogLevel: getEnv("LOG_LEVEL", orStr(app.Logging.Level, "info")),
		LogPath:  getEnv("LOG_PATH", app.Logging.Path),
	}

	return cfg
}

func orStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
