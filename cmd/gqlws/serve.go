package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	config "github.com/hanpama/gqlws/internal/config"
	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	logging "github.com/hanpama/gqlws/internal/logging"
	metrics "github.com/hanpama/gqlws/internal/metrics"
	otel "github.com/hanpama/gqlws/internal/otel"
	pubsub "github.com/hanpama/gqlws/internal/pubsub"
	server "github.com/hanpama/gqlws/internal/server"
	transport "github.com/hanpama/gqlws/internal/transport"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	configPath string
	envFile    string
}

func newServeCommand() *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd.Flags(), o, os.Getenv)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}))
		},
	}
	cmd.Flags().StringVar(&o.configPath, "config", "", "configuration file (.toml, .yaml or .yml)")
	cmd.Flags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	defaults := config.Default()
	bindConfigFlags(cmd.Flags(), &defaults)
	return cmd
}

// bindConfigFlags declares one flag per configurable setting, named after
// its section and key.
func bindConfigFlags(fs *pflag.FlagSet, c *config.File) {
	fs.StringVar(&c.Server.Addr, "server.addr", c.Server.Addr, "HTTP listen address")
	fs.StringVar(&c.Server.Path, "server.path", c.Server.Path, "GraphQL HTTP path")
	fs.DurationVar(&c.Server.Timeout, "server.timeout", c.Server.Timeout, "per-request timeout")
	fs.BoolVar(&c.Server.Pretty, "server.pretty", c.Server.Pretty, "pretty-print JSON responses")
	fs.Int64Var(&c.Server.MaxBodyBytes, "server.max-body-bytes", c.Server.MaxBodyBytes, "request body limit, 0 for none")
	fs.StringSliceVar(&c.Server.CORSOrigins, "server.cors-origin", c.Server.CORSOrigins, "allowed CORS origin, repeatable")
	fs.StringSliceVar(&c.Server.MetadataHeaders, "server.metadata-header", c.Server.MetadataHeaders, "HTTP header forwarded to outgoing metadata, repeatable")
	fs.BoolVar(&c.GraphiQL.Enabled, "graphiql.enabled", c.GraphiQL.Enabled, "serve GraphiQL")
	fs.StringVar(&c.GraphiQL.Path, "graphiql.path", c.GraphiQL.Path, "GraphiQL route, empty to share the GraphQL path")
	fs.BoolVar(&c.Subscriptions.Enabled, "subscriptions.enabled", c.Subscriptions.Enabled, "serve graphql-ws")
	fs.StringVar(&c.Subscriptions.Path, "subscriptions.path", c.Subscriptions.Path, "graphql-ws path")
	fs.DurationVar(&c.Subscriptions.KeepAlive, "subscriptions.keep-alive", c.Subscriptions.KeepAlive, "keep-alive interval, 0 to disable")
	fs.StringSliceVar(&c.Subscriptions.AllowedOrigins, "subscriptions.allowed-origin", c.Subscriptions.AllowedOrigins, "allowed WebSocket origin, repeatable")
	fs.StringVar(&c.Log.Level, "log.level", c.Log.Level, "log level")
	fs.StringVar(&c.Log.Format, "log.format", c.Log.Format, "log format (console|json)")
	fs.StringVar(&c.OTel.Endpoint, "otel.endpoint", c.OTel.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&c.OTel.Service, "otel.service", c.OTel.Service, "OpenTelemetry service name")
	fs.StringVar(&c.Metrics.Addr, "metrics.addr", c.Metrics.Addr, "metrics listen address, empty to share server.addr")
	fs.StringVar(&c.Metrics.Path, "metrics.path", c.Metrics.Path, "metrics path")
	fs.StringVar(&c.PubSub.Backend, "pubsub.backend", c.PubSub.Backend, "broker backend (memory|redis)")
	fs.StringVar(&c.PubSub.RedisURL, "pubsub.redis-url", c.PubSub.RedisURL, "Redis URL for the redis backend")
}

// loadServeConfig layers defaults, the config file, the dotenv file,
// GQLWS_* variables and finally the flags set on the command line.
func loadServeConfig(flags *pflag.FlagSet, o serveOptions, getenv func(string) string) (config.File, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.File{}, err
	}
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.File{}, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.File{}, err
	}

	bound := pflag.NewFlagSet("config", pflag.ContinueOnError)
	bindConfigFlags(bound, &cfg)
	var setErr error
	flags.Visit(func(f *pflag.Flag) {
		dst := bound.Lookup(f.Name)
		if dst == nil || setErr != nil {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			setErr = dst.Value.(pflag.SliceValue).Replace(sv.GetSlice())
			return
		}
		setErr = dst.Value.Set(f.Value.String())
	})
	if setErr != nil {
		return config.File{}, setErr
	}
	if err := cfg.Validate(); err != nil {
		return config.File{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newBroker(ctx context.Context, cfg config.PubSubConfig) (pubsub.Broker, error) {
	if cfg.Backend == "redis" {
		return pubsub.NewRedis(ctx, cfg.RedisURL)
	}
	return pubsub.NewMemory(), nil
}

// app is the assembled server: handlers plus the subscribers feeding on
// their events.
type app struct {
	mux     *http.ServeMux
	metrics *http.ServeMux
	close   func(context.Context) error
}

func build(ctx context.Context, cfg config.File, log zerolog.Logger) (*app, error) {
	bus := eventbus.New()
	eventbus.Use(bus)

	shutdownTrace, err := otel.Setup(ctx, cfg.OTel.Endpoint, cfg.OTel.Service, bus)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	m := metrics.New()
	unregisterMetrics := m.Register(bus)

	broker, err := newBroker(ctx, cfg.PubSub)
	if err != nil {
		_ = shutdownTrace(ctx)
		unregisterMetrics()
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	exec, err := newDemoExecutor(broker)
	if err != nil {
		_ = broker.Close()
		_ = shutdownTrace(ctx)
		unregisterMetrics()
		return nil, fmt.Errorf("schema: %w", err)
	}
	resolver := cfg.Resolve(exec)

	sopts := []server.Option{server.WithTimeout(cfg.Server.Timeout)}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if cfg.Server.MaxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	gql := server.New(resolver, log, sopts...)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, gql)
	if cfg.GraphiQL.Enabled && cfg.GraphiQL.Path != "" {
		mux.Handle(cfg.GraphiQL.Path, gql.GraphiQL())
	}
	if cfg.Subscriptions.Enabled {
		mux.Handle(cfg.Subscriptions.Path, transport.New(resolver, log,
			transport.WithKeepAlive(cfg.Subscriptions.KeepAlive),
			transport.WithWriteTimeout(cfg.Subscriptions.WriteTimeout),
			transport.WithReadLimit(cfg.Subscriptions.ReadLimit),
			transport.WithSendBuffer(cfg.Subscriptions.SendBuffer),
			transport.WithAllowedOrigins(cfg.Subscriptions.AllowedOrigins...),
			transport.WithMetadataHeaders(cfg.Server.MetadataHeaders...),
		))
	}

	a := &app{mux: mux}
	if cfg.Metrics.Addr == "" {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	} else {
		a.metrics = http.NewServeMux()
		a.metrics.Handle(cfg.Metrics.Path, m.Handler())
	}
	a.close = func(ctx context.Context) error {
		unregisterMetrics()
		return errors.Join(broker.Close(), shutdownTrace(ctx))
	}
	return a, nil
}

func serve(ctx context.Context, cfg config.File, log zerolog.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: a.mux}}
	if a.metrics != nil {
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Addr, Handler: a.metrics})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}
		errs = append(errs, a.close(sctx))
		log.Info().Msg("stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
