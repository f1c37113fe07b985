package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"treekv/config"
	"treekv/core/runtime"
	"treekv/native/common"
	"treekv/observability"
	"treekv/observability/logging"
	telemetry "treekv/observability/otel"
	"treekv/storage"
)

const (
	defaultConfig = "./treekv.toml"
	callerEnv     = "TREEKV_CALLER"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  treekv [-config path] [-caller account] init")
	fmt.Fprintln(w, "  treekv [-config path] [-caller account] call <method> [json-args]")
	fmt.Fprintln(w, "  treekv [-config path] [-metrics addr] serve      (newline-delimited JSON calls on stdin)")
	fmt.Fprintln(w, "  treekv methods")
}

type env struct {
	rt       *runtime.Runtime
	registry *prometheus.Registry
	limiter  *callLimiter
	closers  []func() error
}

func (e *env) close() { closeAll(e.closers) }

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("treekv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfig, "Path to the treekv config file (.toml, .yaml or .yml)")
	caller := fs.String("caller", os.Getenv(callerEnv), "Account the call executes on behalf of (defaults to $"+callerEnv+")")
	metricsAddr := fs.String("metrics", "", "Address to expose Prometheus metrics on while serving")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	if rest[0] == "methods" {
		for _, name := range runtime.Methods() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Backend == storage.BackendMemory && rest[0] != "serve" {
		fmt.Fprintf(stderr, "Error: the %s backend keeps no state between invocations; use serve\n", storage.BackendMemory)
		return 1
	}
	e, err := setup(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer e.close()

	switch rest[0] {
	case "init":
		return emit(stdout, e.rt.Call(ctx, runtime.Call{Caller: *caller, Method: "new"}))
	case "call":
		if len(rest) < 2 || len(rest) > 3 {
			usage(stderr)
			return 2
		}
		call := runtime.Call{Caller: *caller, Method: rest[1]}
		if len(rest) == 3 {
			call.Args = json.RawMessage(rest[2])
		}
		return emit(stdout, e.rt.Call(ctx, call))
	case "serve":
		if *metricsAddr != "" {
			srv := serveMetrics(*metricsAddr, e.registry)
			e.closers = append(e.closers, func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		if err := serve(ctx, e.rt, e.limiter, stdin, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func setup(ctx context.Context, cfg *config.Config, logOut io.Writer) (*env, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: cfg.LogMaxSizeMB}
		closers = append(closers, rotating.Close)
		logOut = rotating
	}
	logger := logging.Setup(cfg.ServiceName, cfg.Environment, logging.Options{Level: level, Output: logOut})

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	closers = append(closers, func() error { return shutdown(context.Background()) })

	db, err := storage.Open(cfg.Backend, cfg.StorePath())
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	closers = append(closers, db.Close)

	registry := prometheus.NewRegistry()
	rt := runtime.New(db,
		runtime.WithLogger(logger),
		runtime.WithMetrics(observability.NewCallMetrics(registry)),
		runtime.WithArgLogging(cfg.LogArgs),
		runtime.WithPauses(common.NewPauseSet(cfg.Paused...)),
	)
	return &env{
		rt:       rt,
		registry: registry,
		limiter:  newCallLimiter(cfg.CallsPerMinute),
		closers:  closers,
	}, nil
}

func emit(w io.Writer, out runtime.Outcome) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 1
	}
	if !out.OK() {
		return 1
	}
	return 0
}

// request is one line of the serve stream.
type request struct {
	Caller string          `json:"caller"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// serve executes one call per input line and writes one outcome per output
// line until the input ends or ctx is cancelled.
func serve(ctx context.Context, rt *runtime.Runtime, limiter *callLimiter, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req request
		dec := json.NewDecoder(strings.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			if encErr := enc.Encode(runtime.Outcome{
				Status:  runtime.StatusInvalid,
				Message: fmt.Sprintf("decode request: %v", err),
			}); encErr != nil {
				return encErr
			}
			continue
		}
		if err := limiter.wait(ctx); err != nil {
			return nil
		}
		outcome := rt.Call(ctx, runtime.Call{Caller: req.Caller, Method: req.Method, Args: req.Args})
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), "treekv.metrics"))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

// callLimiter paces the serve loop to a configured number of calls per minute.
type callLimiter struct {
	limiter *rate.Limiter
}

func newCallLimiter(perMinute int) *callLimiter {
	if perMinute <= 0 {
		return nil
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	return &callLimiter{limiter: rate.NewLimiter(limit, perMinute)}
}

func (l *callLimiter) wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
