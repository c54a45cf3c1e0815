package nowplaying

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"
)

type Config struct {
	// CancelStale cancels an in-flight artwork resolution as soon as it is
	// superseded. Superseded results are discarded either way.
	CancelStale bool `yaml:"cancel-stale"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&cfg.CancelStale, util.PrefixConfig(prefix, "cancel-stale"), true,
		"Cancel artwork resolution for a track once a newer station, track or reset supersedes it.")
}
