package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type ControlConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	WatchTimeout time.Duration
}

type BackendConfig struct {
	BaseURL        string
	ProfileBaseURL string
	HealthURL      string
	APIKey         string
	RequestTimeout time.Duration
}

type SessionConfig struct {
	SettleDelay      time.Duration
	LivenessInterval time.Duration
	ProbeInterval    time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type VaultConfig struct {
	DeviceSecret string
}

type AvatarConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	URLTTL    time.Duration
}

type AppConfig struct {
	Environment string
	Control     ControlConfig
	Backend     BackendConfig
	Session     SessionConfig
	Redis       RedisConfig
	Vault       VaultConfig
	Avatar      AvatarConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("FIELDNOTE")
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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", 7430)
	v.SetDefault("control.readtimeout", "10s")
	v.SetDefault("control.writetimeout", "45s")
	v.SetDefault("control.idletimeout", "60s")
	v.SetDefault("control.watchtimeout", "30s")

	v.SetDefault("backend.baseurl", "https://api.fieldnote.app")
	v.SetDefault("backend.profilebaseurl", "https://api.fieldnote.app")
	v.SetDefault("backend.healthurl", "https://api.fieldnote.app/api/v1/healthz")
	v.SetDefault("backend.requesttimeout", "15s")

	v.SetDefault("session.settledelay", "500ms")
	v.SetDefault("session.livenessinterval", "2m")
	v.SetDefault("session.probeinterval", "10s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyprefix", "fieldnote:agent:")

	v.SetDefault("avatar.bucket", "fieldnote-avatars")
	v.SetDefault("avatar.usessl", true)
	v.SetDefault("avatar.region", "us-east-1")
	v.SetDefault("avatar.urlttl", "15m")
}
