package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	RedisAddr     string `mapstructure:"redis_addr"`
	ChannelPrefix string `mapstructure:"channel_prefix"`

	RTCMinPort  uint16 `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16 `mapstructure:"rtc_max_port"`
	AnnouncedIP string `mapstructure:"announced_ip"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("channel_prefix", "")
	v.SetDefault("rtc_min_port", 2000)
	v.SetDefault("rtc_max_port", 2020)
	v.SetDefault("announced_ip", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Redis: %s\n", cfg.Mode, cfg.Port, cfg.RedisAddr)
	return &cfg, nil
}
