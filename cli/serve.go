package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	devhttp "github.com/devhub/devhub-go/adapter/http"
	"github.com/devhub/devhub-go/app"
)

// ServeCmd starts the HTTP API.
// Usage: devhub serve --addr :8080
type ServeCmd struct {
	FaultFlags
	Addr string `short:"a" long:"addr" description:"listen address (overrides server.address)"`
}

func (s *ServeCmd) Execute(_ []string) error {
	cfg, err := s.FaultFlags.load()
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Address = s.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := newServer(a)
	return serve(ctx, a, srv)
}

func newServer(a *app.App) *devhttp.Server {
	cfg := a.Config
	srv := devhttp.NewServer(a.Orchestrator, cfg.Server.Address,
		devhttp.WithLogger(a.Logger),
		devhttp.WithMetrics(a.Metrics),
		devhttp.WithMemory(a.Memory),
		devhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		devhttp.WithReadinessCheck("fixtures", func(context.Context) error {
			if a.DocSearch.DocumentCount() == 0 || a.Directory.OwnerCount() == 0 || a.Health.ServiceCount() == 0 {
				return errors.New("a backend has no data loaded")
			}
			return nil
		}),
	)
	if pinger, ok := a.Memory.(interface{ Ping(context.Context) error }); ok {
		srv.AddCheck("session", pinger.Ping)
	}
	return srv
}

// serve runs srv until ctx is cancelled, then drains it within the graceful
// timeout.
func serve(ctx context.Context, a *app.App, srv *devhttp.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
