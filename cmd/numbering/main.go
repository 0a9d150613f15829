// Package main is the numbering admin CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"optiledger/internal/app"
	"optiledger/internal/cli"
	"optiledger/internal/config"
	"optiledger/pkg/logger"
)

func main() {
	cmd := cli.NewRootCommand(open)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func open(ctx context.Context, opts *cli.RootOptions) (cli.Service, func(), error) {
	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return nil, nil, err
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	// The CLI exits after one command; its metrics are never scraped.
	rt, err := app.New(logger.WithLogger(ctx, log), cfg, app.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		return nil, nil, err
	}
	return rt.Numbering, func() {
		rt.Close()
		_ = log.Sync()
	}, nil
}
