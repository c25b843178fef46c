package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/app"
	"github.com/vladislavdragonenkov/shiftlab/internal/version"
)

type options struct {
	envFiles    []string
	showVersion bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("shiftlab-service", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		opts    options
		envFile string
	)
	fs.StringVar(&envFile, "env-file", "", "path to .env file (default: ./.env if present)")
	fs.BoolVar(&opts.showVersion, "version", false, "print build information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if envFile != "" {
		opts.envFiles = []string{envFile}
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cfg, err := app.LoadConfig(opts.envFiles...)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	cfg.ConfigureLogger(log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Get()
	log.WithFields(log.Fields{
		"version":      build.Version,
		"commit":       build.Commit,
		"grpc_addr":    cfg.GRPCAddr,
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("starting shiftlab service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service stopped with error")
	}

	log.Info("shiftlab service stopped")
}
