package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/vectors"
)

var defaultSuiteShapes = []string{"1x1x2x2", "1x1x1x1", "2x3x5x4", "2x4x16x8", "3x5x33x7", "8x16x64x32"}

func genCmd() *cli.Command {
	var (
		out    string
		shapes []string
		seed   int64
	)

	return &cli.Command{
		Name:  "gen",
		Usage: "Write a reference vector suite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (.json, .yaml, .yml)",
				Required:    true,
				Destination: &out,
			},
			&cli.StringSliceFlag{
				Name:        "shape",
				Usage:       "case shape as BxTxCxOC (repeatable or comma separated)",
				Value:       defaultSuiteShapes,
				Destination: &shapes,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "base seed; case i uses seed+10*i",
				Value:       1,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			list, err := parseShapes(shapes)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			suite := &vectors.Suite{Version: vectors.SuiteVersion}
			for i, s := range list {
				c, err := vectors.Generate(fmt.Sprintf("case%02d_%dx%dx%dx%d", i, s.B, s.T, s.C, s.OC), s, seed+int64(10*i))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				suite.Cases = append(suite.Cases, c)
			}
			if err := vectors.Save(out, suite); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("wrote vector suite", "path", out, "cases", len(suite.Cases))
			_, _ = fmt.Fprintf(cmd.Root().Writer, "wrote %d cases to %s\n", len(suite.Cases), out)
			return nil
		},
	}
}
