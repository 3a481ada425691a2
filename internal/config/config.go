// Package config loads the weftd server configuration from a YAML file and
// the environment. The library itself takes explicit parameters; only the
// server binary reads configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the weftd server.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Store struct {
		// Driver selects the instance store: memory, sqlite, or redis.
		Driver string `mapstructure:"driver"`
		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"store"`
	Engine struct {
		DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	} `mapstructure:"engine"`
	Volvox struct {
		// Endpoint of the research platform's tool server. Empty disables
		// registration of the Volvox toolset.
		Endpoint string        `mapstructure:"endpoint"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"volvox"`
}

// Load reads configuration from the given file, or from config.yaml in the
// working directory and ./config when path is empty. Environment variables
// override file values (WEFT_STORE_DRIVER, WEFT_SERVER_ADDR, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8089")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite.path", "weft.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("engine.default_timeout", 30*time.Second)
	v.SetDefault("volvox.timeout", 60*time.Second)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and environment apply.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return &cfg, nil
}
