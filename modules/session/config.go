package session

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultDialTimeout   = 5 * time.Second
	defaultHeaderTimeout = 10 * time.Second
	defaultSyncWindow    = 8 * 1024
)

type Config struct {
	DialTimeout   time.Duration `yaml:"dial-timeout,omitempty"`
	HeaderTimeout time.Duration `yaml:"header-timeout,omitempty"`
	UserAgent     string        `yaml:"user-agent,omitempty"`

	// Output receives the audio while playing. Empty discards it; "-" is stdout.
	Output string `yaml:"output,omitempty"`

	// SyncWindow is how many bytes may arrive without an MPEG frame sync before
	// the stream is considered ready anyway.
	SyncWindow int `yaml:"sync-window,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.DialTimeout, util.PrefixConfig(prefix, "dial-timeout"), defaultDialTimeout,
		"Timeout for connecting to a station stream.")
	f.DurationVar(&cfg.HeaderTimeout, util.PrefixConfig(prefix, "header-timeout"), defaultHeaderTimeout,
		"Timeout for receiving the stream response headers.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), "",
		"User agent sent to station streams. Empty uses the stream client default.")
	f.StringVar(&cfg.Output, util.PrefixConfig(prefix, "output"), "",
		"File or pipe that receives the audio while playing. Empty discards audio; - writes to stdout.")
	f.IntVar(&cfg.SyncWindow, util.PrefixConfig(prefix, "sync-window"), defaultSyncWindow,
		"Bytes to inspect for an MPEG frame sync before reporting the stream ready anyway.")
}

func (cfg *Config) applyDefaults() {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaultHeaderTimeout
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = defaultSyncWindow
	}
}
