package app

import (
	"flag"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/radioplayer/modules/api"
	"github.com/zachfi/radioplayer/modules/nowplaying"
	"github.com/zachfi/radioplayer/modules/session"
	"github.com/zachfi/radioplayer/pkg/artwork"
)

type Config struct {
	Target     string            `yaml:"target"`
	LogLevel   string            `yaml:"log-level,omitempty"`
	Tracing    tracing.Config    `yaml:"tracing,omitempty"`
	Server     server.Config     `yaml:"server,omitempty"`
	Artwork    artwork.Config    `yaml:"artwork,omitempty"`
	NowPlaying nowplaying.Config `yaml:"nowplaying,omitempty"`
	Session    session.Config    `yaml:"session,omitempty"`
	API        api.Config        `yaml:"api,omitempty"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Target, "target", All, "The module to run.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Log level: debug, info, warn or error.")

	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9090, "gRPC server listen port.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Artwork.RegisterFlagsAndApplyDefaults("artwork", f)
	c.NowPlaying.RegisterFlagsAndApplyDefaults("nowplaying", f)
	c.Session.RegisterFlagsAndApplyDefaults("session", f)
	c.API.RegisterFlagsAndApplyDefaults("api", f)
}
