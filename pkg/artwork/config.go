package artwork

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultLookupURL = "https://itunes.apple.com/search"
	defaultTimeout   = 10 * time.Second
	defaultCacheTTL  = 30 * time.Minute
	defaultMaxBytes  = 5 * 1024 * 1024 // 5 MiB
)

type Config struct {
	LookupURL string        `yaml:"lookup-url,omitempty"` // track search endpoint
	Timeout   time.Duration `yaml:"timeout,omitempty"`    // bound on a whole resolution (lookup + download)
	CacheTTL  time.Duration `yaml:"cache-ttl,omitempty"`  // how long lookup answers are remembered
	MaxBytes  int           `yaml:"max-bytes,omitempty"`  // largest artwork body accepted
	UserAgent string        `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.LookupURL, util.PrefixConfig(prefix, "lookup-url"), defaultLookupURL, "Track search API used to find artwork when none is announced.")
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultTimeout,
		"Upper bound for one artwork resolution. On expiry the track is published without artwork.")
	f.DurationVar(&cfg.CacheTTL, util.PrefixConfig(prefix, "cache-ttl"), defaultCacheTTL, "How long artwork lookup results are cached.")
	f.IntVar(&cfg.MaxBytes, util.PrefixConfig(prefix, "max-bytes"), defaultMaxBytes, "Largest artwork image accepted, in bytes.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), "radioplayer", "User-Agent sent with lookup and download requests.")
}

func (cfg *Config) applyDefaults() {
	if cfg.LookupURL == "" {
		cfg.LookupURL = defaultLookupURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "radioplayer"
	}
}
