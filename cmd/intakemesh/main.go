// Command intakemesh runs the conversational intake service: the Twilio
// webhook, the admin API and the background janitors.
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

	"github.com/spf13/pflag"

	"github.com/hupe1980/intakemesh"
	"github.com/hupe1980/intakemesh/config"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/server"
	"github.com/hupe1980/intakemesh/session"
	"github.com/hupe1980/intakemesh/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("intakemesh", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flagSet.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: memory or sqlite")
	flagSet.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	flagSet.StringVar(&cfg.FlowFile, "flows", cfg.FlowFile, "step graph YAML (default: embedded definition)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	flagSet.BoolVar(&cfg.PushReplies, "push-replies", cfg.PushReplies, "send replies through the Twilio API instead of TwiML")
	checkOnly := flagSet.Bool("check", false, "validate the step graph and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, false)

	graph, err := loadGraph(cfg.FlowFile)
	if err != nil {
		return err
	}
	if *checkOnly {
		fmt.Printf("step graph ok: %d flows, %d menu entries\n", len(graph.Flows), len(graph.Menu.Entries))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []func(o *intakemesh.Options){func(o *intakemesh.Options) {
		o.Graph = graph
		o.AdminIdentity = cfg.AdminIdentity
		o.PushReplies = cfg.PushReplies
		o.ClassifyTimeout = cfg.Timeouts.Classify
		o.AssistTimeout = cfg.Timeouts.Assist
		o.MediaTimeout = cfg.Timeouts.Media
		o.Logger = logger
	}}

	var health server.Pinger
	switch cfg.Storage {
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, func(o *sqlite.Options) {
			o.SessionTTL = cfg.SessionTTL
			o.Logger = logger.WithComponent("sqlite")
		})
		if err != nil {
			return err
		}
		defer store.Close()

		go store.Run(ctx, cfg.SweepEvery)
		health = store
		opts = append(opts, func(o *intakemesh.Options) {
			o.Sessions = store
			o.Records = store
			o.Idempotency = store
			o.Counter = store
		})
	default:
		sessions := session.NewInMemoryStore(func(o *session.Options) {
			o.TTL = cfg.SessionTTL
			o.Logger = logger.WithComponent("session")
		})
		go sessions.Run(ctx, cfg.SweepEvery)
		opts = append(opts, func(o *intakemesh.Options) { o.Sessions = sessions })
	}

	collaborators, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		return err
	}
	opts = append(opts, collaborators.apply)

	mesh, err := intakemesh.New(opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: mesh.Handler(func(o *server.Options) {
			o.AuthToken = cfg.Twilio.AuthToken
			o.WebhookURL = cfg.Twilio.WebhookURL
			o.AdminToken = cfg.AdminToken
			o.Health = health
			o.Logger = logger.WithComponent("http")
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "storage", cfg.Storage, "model", cfg.Model.Provider, "push_replies", cfg.PushReplies)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadGraph(path string) (*flow.Graph, error) {
	if path == "" {
		return flow.Default()
	}
	return flow.LoadFile(path)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `intakemesh - conversational intake service

Serves the messaging webhook (POST /webhook) and the admin API (/api/...).
Configuration is read from INTAKE_* environment variables; the flags below
override them.

Usage:
  intakemesh [flags]

Flags:
%s`, flagSet.FlagUsages())
}
