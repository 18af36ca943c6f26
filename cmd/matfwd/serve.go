package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/api"
	"github.com/samcharles93/matfwd/internal/backend"
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeLimit  int
		capacity    tensor.Shape
	)

	flags := shapeFlags(&capacity, tensor.Shape{B: 4, T: 256, C: 1024, OC: 1024})
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.IntFlag{
			Name:        "store-limit",
			Usage:       "number of forward results kept for lookup",
			Value:       api.DefaultStoreLimit,
			Destination: &storeLimit,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the forward pass over HTTP (shape flags size the device session)",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, loadedConfig, &addr)

			session, resolved, err := backend.Open(backendName, capacity, localSize, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			exec := linear.NewExecutor(session, resolved, log)
			defer func() { _ = exec.Close() }()

			server := api.NewServer(exec, api.NewResultStore(storeLimit), log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "backend", resolved, "capacity", capacity.String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
