// Command gateway serves the Odoo record operations over JSON-RPC 2.0.
//
// Settings are read from the environment and an optional .env file; see
// package config. At minimum set ODOO_URL, or ODOO_DB and ODOO_HOST.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcgate/auth"
	"github.com/mnehpets/rpcgate/config"
	"github.com/mnehpets/rpcgate/endpoint"
	"github.com/mnehpets/rpcgate/interceptor"
	"github.com/mnehpets/rpcgate/jsonrpc"
	"github.com/mnehpets/rpcgate/middleware"
	"github.com/mnehpets/rpcgate/odoo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	s, processors, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info().
		Str("addr", s.Addr()).
		Str("backend", cfg.OdooContext().URL).
		Strs("methods", s.Methods()).
		Msg("starting gateway")
	return s.ListenAndServe(ctx, processors...)
}

// build assembles the server and the HTTP processors that run in front of it.
func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*jsonrpc.Server, []endpoint.Processor, error) {
	backend := cfg.OdooContext()

	middlewares := []jsonrpc.Middleware{interceptor.Recover(), interceptor.Logging(log)}

	var gatherer prometheus.Gatherer
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mw, err := interceptor.Metrics(reg)
		if err != nil {
			return nil, nil, err
		}
		middlewares = append(middlewares, mw)
		gatherer = reg
	}
	if lim := cfg.Limiter(); lim != nil {
		middlewares = append(middlewares, interceptor.RateLimit(lim))
	}

	processors := []endpoint.Processor{middleware.NewRequestLogProcessor(log)}
	secOpts := []middleware.SecurityHeadersOption{middleware.WithoutHSTS()}
	if len(cfg.CORSOrigins) > 0 {
		secOpts = append(secOpts, middleware.WithCORS(middleware.DefaultCORS(cfg.CORSOrigins...)))
	}
	processors = append(processors, middleware.NewSecurityHeadersProcessor(secOpts...))

	if cfg.OIDC.Issuer != "" {
		v, err := auth.NewVerifier(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID)
		if err != nil {
			return nil, nil, err
		}
		processors = append(processors, auth.NewBearerProcessor(v))
		middlewares = append(middlewares, interceptor.RequireAuth(odoo.MethodAuthenticate))
	}

	s := jsonrpc.NewServer(jsonrpc.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Context:    backend.Values(),
		Middleware: middlewares,
		Logger:     &log,
		Gatherer:   gatherer,
	})

	opts := []odoo.Option{odoo.WithLogger(&log)}
	switch cfg.Odoo.ObjectMethod {
	case "":
	case config.MethodFromArgs:
		opts = append(opts, odoo.WithMethodFromArgs())
	default:
		opts = append(opts, odoo.WithObjectMethod(cfg.Odoo.ObjectMethod))
	}
	if cfg.Odoo.BearerToken != "" {
		opts = append(opts, odoo.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Odoo.BearerToken})))
	}
	odoo.NewAdapter(backend, opts...).Register(s)
	return s, processors, nil
}
