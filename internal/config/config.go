package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOperation = "totals"
	DefaultPattern   = "dump_*.json"
	DefaultStoreDir  = "stores"
	DefaultOutDir    = "frames"
)

type Config struct {
	Operation  string            `yaml:"operation"`
	Pattern    string            `yaml:"pattern"`
	Workers    int               `yaml:"workers"`
	Resume     bool              `yaml:"resume"`
	Timeout    time.Duration     `yaml:"timeout"`
	Start      float64           `yaml:"start"`
	End        float64           `yaml:"end"`
	OutDir     string            `yaml:"out_dir"`
	StoreDir   string            `yaml:"store_dir"`
	AllowEmpty bool              `yaml:"allow_empty"`
	Options    map[string]string `yaml:"options"`
}

func DefaultConfig() *Config {
	return &Config{
		Operation: DefaultOperation,
		Pattern:   DefaultPattern,
		End:       -1,
		OutDir:    DefaultOutDir,
		StoreDir:  DefaultStoreDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
