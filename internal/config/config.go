package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the desktop client.
type Config struct {
	Backend BackendConfig
	Audio   AudioConfig
	Cache   CacheConfig
	Log     LogConfig
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type CacheConfig struct {
	RepoTTL time.Duration
}

type LogConfig struct {
	FilePath string
}

// LoadEnvFile loads a .env from the working directory if present. Missing
// files are not an error; explicit environment always wins.
func LoadEnvFile() {
	_ = godotenv.Load(".env")
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	logPath := strings.TrimSpace(os.Getenv("GITREAL_LOG_FILE"))
	if logPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			logPath = filepath.Join(home, ".local", "state", "gitreal", "gitreal.log")
		} else {
			logPath = "gitreal.log"
		}
	}

	cfg := Config{
		Backend: BackendConfig{
			BaseURL: envOrDefault("GITREAL_BACKEND_URL", "http://localhost:8000"),
			Timeout: time.Duration(envOrDefaultInt("GITREAL_HTTP_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("GITREAL_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("GITREAL_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("GITREAL_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("GITREAL_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("GITREAL_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("GITREAL_CHANNELS", 1),
		},
		Cache: CacheConfig{
			RepoTTL: time.Duration(envOrDefaultInt("GITREAL_REPO_CACHE_TTL_MS", int(time.Hour/time.Millisecond))) * time.Millisecond,
		},
		Log: LogConfig{
			FilePath: logPath,
		},
	}

	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Cache.RepoTTL <= 0 {
		cfg.Cache.RepoTTL = time.Hour
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
