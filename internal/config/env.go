package config

import (
	"os"
	"strings"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "JMETER_DATA_PATH",
		apply: func(c *Config, v string) {
			c.DataRoot = v
		},
	},
	{
		envVar: "LOADNODE_HEAP",
		apply: func(c *Config, v string) {
			c.Heap = v
		},
	},
	{
		envVar: "LOADNODE_ADDR",
		apply: func(c *Config, v string) {
			c.ListenAddr = v
		},
	},
	{
		envVar: "LOADNODE_RUNTIME",
		apply: func(c *Config, v string) {
			c.Runtime.Backend = strings.ToLower(v)
		},
	},
	{
		envVar: "LOADNODE_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
