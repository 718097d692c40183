package main

import (
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the optional YAML configuration for the shell. Every field has a
// usable default so the file may be partial or absent.
type Config struct {
	Path                   string `yaml:"path"`
	MemtableFlushThreshold int    `yaml:"memtable_flush_threshold"`
	BlockCacheCapacity     int    `yaml:"block_cache_capacity"`
	MaxBatchSize           int    `yaml:"max_batch_size"`
	BloomBitsPerKey        int    `yaml:"bloom_bits_per_key"`
	Verbose                bool   `yaml:"verbose"`
}

func defaultConfig() Config {
	return Config{
		Path:                   "citrine-data",
		MemtableFlushThreshold: 4096,
		BlockCacheCapacity:     256,
		MaxBatchSize:           64,
		BloomBitsPerKey:        10,
		Verbose:                false,
	}
}

// loadConfig reads path when it exists; fields left out of the file keep
// their defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
