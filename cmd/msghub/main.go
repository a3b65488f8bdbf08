package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/tailored-agentic-units/msghub/adapters"
	"github.com/tailored-agentic-units/msghub/config"
	"github.com/tailored-agentic-units/msghub/hub"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/transport"
	"github.com/tailored-agentic-units/msghub/transport/httppeer"
	"github.com/tailored-agentic-units/msghub/transport/websocket"
)

const usage = `Usage: msghub <command> [flags]

Commands:
  worker   serve echo, sum and time over stdin/stdout (run by a parent)
  serve    serve echo, sum and time over websocket at /hub
  call     open the configured peer and perform one request`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "worker":
		err = runWorker(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "call":
		err = runCall(ctx, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("msghub %s: %v", os.Args[1], err)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveHub installs the demo routes on a new hub over adapter and blocks
// until the peer goes away or ctx ends.
func serveHub(ctx context.Context, adapter transport.Adapter, cfg config.HubConfig, done <-chan struct{}) error {
	h, err := hub.New(ctx, adapter, cfg)
	if err != nil {
		adapter.Close()
		return err
	}
	defer h.Destroy()

	h.Use(logRequests(cfg.Logger)).RouteMap(routes())

	if err := h.Emit(ctx, "started", map[string]any{"hub": h.Name(), "pid": os.Getpid()}); err != nil {
		cfg.Logger.WarnContext(ctx, "failed to announce start", slog.String("error", err.Error()))
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func runWorker(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	var (
		name    = fs.String("name", "worker", "Hub name")
		codec   = fs.String("codec", config.DefaultCodec, "Wire codec: json or proto")
		verbose = fs.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	fs.Parse(args)

	cfg := config.DefaultHubConfig()
	cfg.Name = *name
	cfg.Codec = *codec
	cfg.Logger = newLogger(*verbose)

	adapter, err := adapters.Open(ctx,
		config.PeerConfig{Kind: string(transport.KindSelf)},
		adapters.WithStdio(os.Stdin, os.Stdout),
		adapters.WithObserver(observability.NewSlogObserver(cfg.Logger)),
	)
	if err != nil {
		return err
	}

	return serveHub(ctx, adapter, cfg, doneOf(adapter))
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		addr         = fs.String("addr", ":8080", "Listen address")
		targetOrigin = fs.String("target-origin", transport.AnyOrigin, "Origin accepted from peers")
		httpPeer     = fs.String("http-peer", "", "Also serve one HTTP peer that accepts posts at this base URL")
		origin       = fs.String("origin", "", "Origin reported to the HTTP peer")
		codec        = fs.String("codec", config.DefaultCodec, "Wire codec: json or proto")
		verbose      = fs.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	fs.Parse(args)

	logger := newLogger(*verbose)
	hubConfig := func(name string) config.HubConfig {
		cfg := config.DefaultHubConfig()
		cfg.Name = name
		cfg.Codec = *codec
		cfg.Logger = logger
		return cfg
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hub", func(w http.ResponseWriter, r *http.Request) {
		adapter, err := websocket.Accept(w, r, *targetOrigin)
		if err != nil {
			logger.WarnContext(r.Context(), "websocket rejected",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("error", err.Error()),
			)
			return
		}
		if err := serveHub(ctx, adapter, hubConfig("ws:"+r.RemoteAddr), adapter.Done()); err != nil {
			logger.ErrorContext(r.Context(), "hub failed", slog.String("error", err.Error()))
		}
	})

	if *httpPeer != "" {
		adapter, err := httppeer.New(*httpPeer, *origin, *targetOrigin)
		if err != nil {
			return err
		}
		mux.Handle(adapter.Handler())
		go func() {
			if err := serveHub(ctx, adapter, hubConfig("http:"+*httpPeer), nil); err != nil {
				logger.ErrorContext(ctx, "http peer hub failed", slog.String("error", err.Error()))
			}
		}()
	}

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving", slog.String("addr", *addr), slog.String("target_origin", *targetOrigin))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runCall(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	var (
		configFile = fs.String("config", "", "Path to config file: .json, .toml or .yaml (required)")
		channel    = fs.String("channel", "", "Channel to request (required)")
		data       = fs.String("data", "null", "Request data as JSON")
		listen     = fs.String("listen", ":8081", "Listen address for replies from an HTTP peer")
		timeout    = fs.Duration("timeout", 10*time.Second, "Overall deadline for readiness and the request")
		verbose    = fs.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	fs.Parse(args)

	if *configFile == "" || *channel == "" {
		fmt.Fprintln(os.Stderr, "Usage: msghub call -config <file> -channel <name> [-data <json>]")
		fs.PrintDefaults()
		os.Exit(1)
	}

	var request any
	if err := json.Unmarshal([]byte(*data), &request); err != nil {
		return fmt.Errorf("invalid -data: %w", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Hub.Logger = newLogger(*verbose)

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	adapter, err := adapters.Open(ctx, cfg.Peer,
		adapters.WithStderr(os.Stderr),
		adapters.WithObserver(observability.NewSlogObserver(cfg.Hub.Logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to open peer: %w", err)
	}

	if peer, ok := adapter.(*httppeer.Adapter); ok {
		mux := http.NewServeMux()
		mux.Handle(peer.Handler())
		server := &http.Server{Addr: *listen, Handler: mux}
		go server.ListenAndServe()
		defer server.Close()
	}

	h, err := hub.New(ctx, adapter, cfg.Hub)
	if err != nil {
		adapter.Close()
		return err
	}
	defer h.Destroy()

	h.On("started", func(ctx context.Context, data any) bool {
		cfg.Hub.Logger.InfoContext(ctx, "peer started", slog.Any("data", data))
		return true
	})

	if err := h.Ready(ctx); err != nil {
		return fmt.Errorf("peer not ready: %w", err)
	}

	result, err := h.Request(ctx, *channel, request)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// doneOf returns the channel that closes when adapter's peer goes away, or
// nil when the adapter has no such signal.
func doneOf(adapter transport.Adapter) <-chan struct{} {
	if d, ok := adapter.(interface{ Done() <-chan struct{} }); ok {
		return d.Done()
	}
	return nil
}
