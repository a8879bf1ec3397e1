package config

import (
	"log"
	"os"
	"sync"

	"github.com/jinzhu/configor"
)

var (
	config Config
	once   sync.Once
)

const FileName = "config.yaml"

// Get reads the configuration once and returns it
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath reads the configuration from filepath once and returns it
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		if _, err := os.Stat(filepath); err != nil {
			log.Fatalf("configuration file is not available: %s", err)
		}
		err := configor.Load(&config, filepath)
		if err != nil {
			log.Fatalf("error reading configuration file %s: %s", filepath, err)
		}
		normalize(&config)
	})
	return &config
}

// Load reads a configuration without caching it
func Load(filepath string) (*Config, error) {
	var cfg Config
	if err := configor.Load(&cfg, filepath); err != nil {
		return nil, err
	}
	normalize(&cfg)
	return &cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Monitor.HistorySize <= 0 {
		cfg.Monitor.HistorySize = 100
	}
	if cfg.Monitor.ReadingsPerSecond < 0 {
		cfg.Monitor.ReadingsPerSecond = 0
	}
}
