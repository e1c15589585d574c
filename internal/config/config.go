// Package config loads rexecd's controller configuration: which contexts
// to spawn, where the stage-one/stage-two binaries live, and logging.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is rexecd's top-level configuration, loaded from a YAML file with
// flag overrides layered on top.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	Stage1   string        `yaml:"stage1_path"`
	Contexts []ContextSpec `yaml:"contexts"`
}

// ContextSpec describes one context rexecd should bootstrap at startup.
type ContextSpec struct {
	Name string `yaml:"name"`
	// Host, if set, bootstraps over SSH; empty means a local subprocess.
	Host string `yaml:"host"`
	User string `yaml:"user"`
}

// Default returns rexecd's baseline configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Stage1:   "./rexec-stage1",
	}
}

// LoadFrom reads and merges a YAML config file over Default(). A missing
// file is not an error — it just means the defaults apply.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}
