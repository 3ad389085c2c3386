package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/digitsum/internal/application"
	"github.com/eugenenazirov/digitsum/internal/config"
	"github.com/eugenenazirov/digitsum/internal/digitsum"
	"github.com/eugenenazirov/digitsum/internal/logging"
	"github.com/eugenenazirov/digitsum/internal/tracing"
)

var signalNotify = signal.Notify

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	kingpinApp := kingpin.New("digitsum", "Digit Sum Calculator - splits a number into digits and sums them step by step")
	kingpinApp.UsageWriter(stdout)
	kingpinApp.ErrorWriter(stderr)

	serveCmd := kingpinApp.Command("serve", "Run the HTTP service").Default()
	configFile := serveCmd.Flag("config", "Path to YAML configuration file").String()
	envFile := serveCmd.Flag("env-file", "Path to a .env file loaded into the environment").Default(".env").String()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	logLevel := serveCmd.Flag("log-level", "Log level: debug, info, warn or error").String()

	computeCmd := kingpinApp.Command("compute", "Print the digit sum of a number (use -- before negative numbers)")
	number := computeCmd.Arg("number", "Number to split into digits").Required().String()
	format := computeCmd.Flag("format", "Output format").Short('f').Default("text").Enum("text", "json", "yaml")

	command, err := kingpinApp.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "digitsum: %v\n", err)
		return 2
	}

	switch command {
	case computeCmd.FullCommand():
		return runCompute(*number, *format, stdout, stderr)
	default:
		overrides := &config.CLIOverrides{
			ConfigFile: *configFile,
			EnvFile:    *envFile,
		}
		if *port != "" {
			overrides.Port = port
		}
		if *rateLimitRPSFlag >= 0 {
			overrides.RateLimitRPS = rateLimitRPSFlag
		}
		if *rateLimitBurstFlag >= 0 {
			overrides.RateLimitBurst = rateLimitBurstFlag
		}
		if *logLevel != "" {
			overrides.LogLevel = logLevel
		}
		return runServe(overrides, stderr)
	}
}

func runCompute(input, format string, stdout, stderr io.Writer) int {
	result, err := digitsum.Compute(input)
	if err != nil {
		failure, ok := digitsum.AsFailure(err)
		if !ok {
			fmt.Fprintf(stderr, "digitsum: %v\n", err)
			return 1
		}
		if format == "text" {
			fmt.Fprintln(stderr, failure.Error)
		} else if encErr := encode(stdout, format, failure); encErr != nil {
			fmt.Fprintf(stderr, "digitsum: %v\n", encErr)
		}
		return 1
	}

	if format == "text" {
		err = digitsum.WriteText(stdout, result)
	} else {
		err = encode(stdout, format, result)
	}
	if err != nil {
		fmt.Fprintf(stderr, "digitsum: write output: %v\n", err)
		return 1
	}
	return 0
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

func runServe(overrides *config.CLIOverrides, stderr io.Writer) int {
	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	traceShutdown, err := tracing.Init(context.Background(), tracing.Options{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", zap.Error(err))
		return 1
	}

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return 1
	}

	if err := app.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return 1
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger, traceShutdown)
	return 0
}

// shutdown blocks until SIGINT or SIGTERM, drains server and then flushes
// pending spans through flushTraces. Each step gets its own timeout.
func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger, flushTraces func(context.Context) error) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("stopping digitsum service", zap.String("signal", sig.String()))

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), timeout)
	defer cancelDrain()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}

	if flushTraces == nil {
		return
	}
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), timeout)
	defer cancelFlush()
	if err := flushTraces(flushCtx); err != nil {
		logger.Warn("trace provider shutdown failed", zap.Error(err))
	}
}
