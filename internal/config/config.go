package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketPhotos string
	UseSSL       bool
	Region       string
}

type SecurityConfig struct {
	CredentialSecret    string
	MemberCredentialTTL time.Duration
	AdminCredentialTTL  time.Duration
	// ClearSessionOnLogout makes logout also blank the stored session token,
	// revoking still-unexpired credentials instead of waiting for the next
	// login to rotate them.
	ClearSessionOnLogout bool
	LoginMaxAttempts     int
	LoginAttemptWindow   time.Duration
}

type RealtimeConfig struct {
	SendQueueSize int
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Realtime         RealtimeConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TASTEMAP")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.CredentialSecret == "" {
		return nil, fmt.Errorf("security.credentialsecret must be set")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketphotos", "tastemap-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	// Admins get the short TTL: a leaked elevated credential should not
	// outlive a working day.
	v.SetDefault("security.membercredentialttl", "72h")
	v.SetDefault("security.admincredentialttl", "2h")
	v.SetDefault("security.clearsessiononlogout", false)
	v.SetDefault("security.loginmaxattempts", 10)
	v.SetDefault("security.loginattemptwindow", "15m")

	v.SetDefault("realtime.sendqueuesize", 32)
}
