package api

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

type Config struct {
	PathPrefix  string        `yaml:"path-prefix,omitempty"`
	EventBuffer int           `yaml:"event-buffer,omitempty"`
	KeepAlive   time.Duration `yaml:"keep-alive,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.PathPrefix, util.PrefixConfig(prefix, "path-prefix"), "/api/v1", "Path prefix for the control API.")
	f.IntVar(&cfg.EventBuffer, util.PrefixConfig(prefix, "event-buffer"), 64, "Events buffered per event stream client before events are dropped.")
	f.DurationVar(&cfg.KeepAlive, util.PrefixConfig(prefix, "keep-alive"), 15*time.Second, "Interval between keep-alive comments on idle event streams.")
}

func (cfg *Config) applyDefaults() {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/api/v1"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
}
