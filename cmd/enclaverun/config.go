package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the optional TOML configuration file. Flags override it.
type Config struct {
	// Device overrides the enclave driver node
	Device string `toml:"device"`
	// Debug enables detailed logging
	Debug bool `toml:"debug"`
	// Allow extends the proxied syscall allowlist
	Allow []string `toml:"allow"`
}

func loadConfig(path string) (*Config, error) {
	var c Config
	if path == "" {
		return &c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}
