package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Veo       VeoConfig
	Sora      SoraConfig
	R2        R2Config
	Render    RenderConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	RenderPerHour int
	PlanPerMin    int
	StatusPerMin  int
}

type VeoConfig struct {
	ProjectID   string
	Location    string
	Model       string
	BaseURL     string // override for tests, empty = regional default
	AccessToken string // static token for local dev, empty = ADC
	SampleCount int
}

type SoraConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// RenderConfig tunes the render pipeline itself: where generated clips land
// on disk, the route they are served under, and the poll loop shape.
type RenderConfig struct {
	AssetDir        string
	AssetBaseURL    string
	PollMode        string // "fixed" or "adaptive"
	PollIntervalSec int
	PollDeadlineSec int
	FfprobePath     string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SORA_API_KEY")
	readSecret("VEO_ACCESS_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("veo.project_id", "VEO_PROJECT_ID")
	_ = viper.BindEnv("veo.location", "VEO_LOCATION")
	_ = viper.BindEnv("veo.model", "VEO_MODEL")
	_ = viper.BindEnv("veo.base_url", "VEO_BASE_URL")
	_ = viper.BindEnv("veo.access_token", "VEO_ACCESS_TOKEN")
	_ = viper.BindEnv("veo.sample_count", "VEO_SAMPLE_COUNT")
	_ = viper.BindEnv("sora.api_key", "SORA_API_KEY")
	_ = viper.BindEnv("sora.base_url", "SORA_BASE_URL")
	_ = viper.BindEnv("sora.model", "SORA_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("render.asset_dir", "RENDER_ASSET_DIR")
	_ = viper.BindEnv("render.asset_base_url", "RENDER_ASSET_BASE_URL")
	_ = viper.BindEnv("render.poll_mode", "RENDER_POLL_MODE")
	_ = viper.BindEnv("render.poll_interval_sec", "RENDER_POLL_INTERVAL_SEC")
	_ = viper.BindEnv("render.poll_deadline_sec", "RENDER_POLL_DEADLINE_SEC")
	_ = viper.BindEnv("render.ffprobe_path", "FFPROBE_PATH")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.render_per_hour", 10)
	viper.SetDefault("ratelimit.plan_per_min", 60)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// Veo defaults. Project id and model carry no defaults: they identify a
	// billing account and must be set explicitly.
	viper.SetDefault("veo.location", "us-central1")
	viper.SetDefault("veo.sample_count", 1)

	// Sora defaults
	viper.SetDefault("sora.base_url", "https://api.openai.com/v1")
	viper.SetDefault("sora.model", "sora-2")

	// Render pipeline defaults
	viper.SetDefault("render.asset_dir", "./video-assets")
	viper.SetDefault("render.asset_base_url", "/video-assets")
	viper.SetDefault("render.poll_mode", "fixed")
	viper.SetDefault("render.poll_interval_sec", 2)
	viper.SetDefault("render.poll_deadline_sec", 600)
	viper.SetDefault("render.ffprobe_path", "ffprobe")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: viper.GetInt("ratelimit.render_per_hour"),
			PlanPerMin:    viper.GetInt("ratelimit.plan_per_min"),
			StatusPerMin:  viper.GetInt("ratelimit.status_per_min"),
		},
		Veo: VeoConfig{
			ProjectID:   viper.GetString("veo.project_id"),
			Location:    viper.GetString("veo.location"),
			Model:       viper.GetString("veo.model"),
			BaseURL:     viper.GetString("veo.base_url"),
			AccessToken: viper.GetString("veo.access_token"),
			SampleCount: viper.GetInt("veo.sample_count"),
		},
		Sora: SoraConfig{
			APIKey:  viper.GetString("sora.api_key"),
			BaseURL: viper.GetString("sora.base_url"),
			Model:   viper.GetString("sora.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Render: RenderConfig{
			AssetDir:        viper.GetString("render.asset_dir"),
			AssetBaseURL:    viper.GetString("render.asset_base_url"),
			PollMode:        viper.GetString("render.poll_mode"),
			PollIntervalSec: viper.GetInt("render.poll_interval_sec"),
			PollDeadlineSec: viper.GetInt("render.poll_deadline_sec"),
			FfprobePath:     viper.GetString("render.ffprobe_path"),
		},
	}

	return cfg, nil
}
