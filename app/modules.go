package app

import (
	"context"
	"fmt"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/zachfi/radioplayer/modules/api"
	"github.com/zachfi/radioplayer/modules/nowplaying"
	"github.com/zachfi/radioplayer/modules/session"
	"github.com/zachfi/radioplayer/pkg/artwork"
)

const (
	Server string = "server"

	NowPlaying string = "nowplaying"
	Session    string = "session"
	API        string = "api"

	All string = "all"
)

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(a.kitLogger)
	mm.RegisterModule(Server, a.initServer, modules.UserInvisibleModule)

	mm.RegisterModule(NowPlaying, a.initNowPlaying)
	mm.RegisterModule(Session, a.initSession)
	mm.RegisterModule(API, a.initAPI)

	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		// Server:     nil,
		// NowPlaying: nil,
		Session: {NowPlaying},
		API:     {Server, Session},

		All: {API},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm

	return nil
}

func (a *App) initNowPlaying() (services.Service, error) {
	resolver := artwork.New(a.cfg.Artwork, a.logger)

	e, err := nowplaying.New(a.cfg.NowPlaying, a.logger, a.surface, a.broker, resolver)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+NowPlaying)
	}
	a.engine = e

	return e, nil
}

func (a *App) initSession() (services.Service, error) {
	out, err := session.OpenOutput(a.cfg.Session.Output)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open audio output")
	}

	player := session.NewStreamPlayer(a.cfg.Session, out, a.logger)

	c, err := session.New(a.logger, a.engine, a.surface, a.broker, player)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+Session)
	}
	a.session = c

	return c, nil
}

func (a *App) initAPI() (services.Service, error) {
	s, err := api.New(a.cfg.API, a.logger, a.Server.HTTP, a.session, a.engine, a.surface, a.broker)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+API)
	}

	return s, nil
}

func (a *App) initServer() (services.Service, error) {
	a.cfg.Server.MetricsNamespace = metricsNamespace
	a.cfg.Server.ExcludeRequestInLog = true
	a.cfg.Server.RegisterInstrumentation = true
	a.cfg.Server.Log = a.kitLogger

	server, err := server.New(a.cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}

	servicesToWaitFor := func() []services.Service {
		svs := []services.Service(nil)
		for m, s := range a.serviceMap {
			// Server should not wait for itself.
			if m != Server {
				svs = append(svs, s)
			}
		}

		return svs
	}

	a.Server = server

	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			serverDone <- server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return err
			}

			return fmt.Errorf("server stopped unexpectedly")
		}
	}

	stoppingFn := func(_ error) error {
		// wait until all modules are done, and then shutdown server.
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		// shutdown HTTP and gRPC servers (this also unblocks Run)
		server.Shutdown()

		// if not closed yet, wait until server stops.
		<-serverDone
		a.logger.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn), nil
}
