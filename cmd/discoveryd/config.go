package main

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the demo host's configuration: everything the host needs
// to build a discovery.Manager, independent of the Discovery Manager
// itself (spec.md §6 names these as configuration the host supplies).
type Config struct {
	LogLevel            string   `mapstructure:"log_level"`
	Hostname            string   `mapstructure:"hostname"`
	CleanupTimeout      uint32   `mapstructure:"cleanup_timeout_seconds"`
	ApplicationURI      string   `mapstructure:"application_uri"`
	ProductURI          string   `mapstructure:"product_uri"`
	DiscoveryURLs       []string `mapstructure:"discovery_urls"`
	MulticastEnabled    bool     `mapstructure:"multicast_enabled"`
	MulticastAddr       string   `mapstructure:"multicast_addr"`
	MulticastPort       int      `mapstructure:"multicast_port"`
	MetricsBindAddr     string   `mapstructure:"metrics_bind_addr"`
	DiscoveryServerURLs []string `mapstructure:"discovery_server_urls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("hostname", "localhost")
	v.SetDefault("cleanup_timeout_seconds", 60)
	v.SetDefault("application_uri", "urn:discoveryd:server")
	v.SetDefault("product_uri", "urn:discoveryd:product")
	v.SetDefault("multicast_enabled", false)
	v.SetDefault("multicast_addr", "224.0.0.251")
	v.SetDefault("multicast_port", 5353)
	v.SetDefault("metrics_bind_addr", ":9464")
}

// loadConfig reads discoveryd.yaml from the current directory or
// /etc/discoveryd/, falling back to defaults plus DISCOVERYD_*
// environment overrides when no file is found.
func loadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DISCOVERYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("discoveryd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/discoveryd")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
