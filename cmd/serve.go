package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/desertthunder/moodtape/internal/server"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve starts the HTTP API and blocks until ctx is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	host, port := r.config.Server.Host, r.config.Server.Port
	if cmd.IsSet("host") {
		host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	pipeline, err := r.Pipeline(true)
	if err != nil {
		return err
	}

	opts := []server.APIOption{}
	if runs, err := r.Runs(); err != nil {
		r.logger.Warn("history routes disabled", "error", err)
	} else {
		opts = append(opts, server.WithRunStore(runs))
	}

	api := server.NewAPI(pipeline, pipeline.Slot(), r.logger, opts...)
	srv := server.New(addr, shared.WithLogger(r.logger, "component", "http"), r.metrics, api)

	for _, route := range srv.Routes() {
		r.logger.Debug("route", "route", route)
	}

	if cmd.Bool("open") {
		url := fmt.Sprintf("http://%s/health", addr)
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("could not open browser", "url", url, "error", err)
		}
	}

	return srv.Run(ctx)
}
