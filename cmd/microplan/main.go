package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Parse command line flags
	fs := flag.NewFlagSet("microplan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	specPath := fs.String("spec", "", "Path to a service spec (YAML)")
	composePath := fs.String("compose", "", "Path to a docker compose file")
	primary := fs.String("primary", "", "Primary service of the compose file")
	apply := fs.Bool("apply", false, "Realize the plan on AWS after recording it")
	list := fs.Bool("list", false, "List recorded plans and exit")
	service := fs.String("service", "", "Filter -list by service name")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	// Handle version flag
	if *showVersion {
		fmt.Fprintf(stdout, "microplan %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg, stderr)
	logger.Debug("starting microplan",
		"version", Version,
		"config", *configPath,
	)

	runner, err := NewRunner(cfg, logger, stdout)
	if err != nil {
		return exitCode(logger, "failed to open plan store", err)
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runner.Run(ctx, RunOptions{
		SpecPath:    *specPath,
		ComposePath: *composePath,
		Primary:     *primary,
		Apply:       *apply,
		List:        *list,
		Service:     *service,
	})
	if err != nil {
		return exitCode(logger, "run failed", err)
	}

	return ExitSuccess
}

func exitCode(logger *slog.Logger, msg string, err error) int {
	var rErr *RunError
	if errors.As(err, &rErr) {
		logger.Error(msg,
			"error", rErr.Err,
			"operation", rErr.Op,
		)
		return rErr.ExitCode
	}
	logger.Error(msg, "error", err)
	return ExitConfigError
}
