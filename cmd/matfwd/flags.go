package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/tensor"
)

var (
	configFile  string
	backendName string
	localSize   int
	logLevel    string
	logFormat   string
	debug       bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file (default ~/.config/matfwd/config.yaml, or $MATFWD_CONFIG)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, host, emu, wgpu)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.IntFlag{
			Name:        "local-size",
			Aliases:     []string{"local"},
			Usage:       "device work-group size (0 = backend default)",
			Destination: &localSize,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// shapeFlags binds the four layer dimensions to s, starting from def.
func shapeFlags(s *tensor.Shape, def tensor.Shape) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "batch", Aliases: []string{"B"}, Usage: "batch size", Value: def.B, Destination: &s.B},
		&cli.IntFlag{Name: "seq", Aliases: []string{"T"}, Usage: "sequence length", Value: def.T, Destination: &s.T},
		&cli.IntFlag{Name: "channels", Aliases: []string{"C"}, Usage: "input channels", Value: def.C, Destination: &s.C},
		&cli.IntFlag{Name: "out-channels", Aliases: []string{"OC"}, Usage: "output channels", Value: def.OC, Destination: &s.OC},
	}
}

// parseShape reads a shape written as BxTxCxOC.
func parseShape(v string) (tensor.Shape, error) {
	parts := strings.Split(strings.TrimSpace(v), "x")
	if len(parts) != 4 {
		return tensor.Shape{}, fmt.Errorf("shape %q: want BxTxCxOC", v)
	}
	var dims [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return tensor.Shape{}, fmt.Errorf("shape %q: %w", v, err)
		}
		dims[i] = n
	}
	s := tensor.Shape{B: dims[0], T: dims[1], C: dims[2], OC: dims[3]}
	if err := s.Validate(); err != nil {
		return tensor.Shape{}, fmt.Errorf("shape %q: %w", v, err)
	}
	return s, nil
}

func parseShapes(list []string) ([]tensor.Shape, error) {
	var out []tensor.Shape
	for _, item := range list {
		for _, v := range strings.Split(item, ",") {
			if strings.TrimSpace(v) == "" {
				continue
			}
			s, err := parseShape(v)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// maxShape returns the per-dimension maximum, which sizes a session able to
// serve every shape in list.
func maxShape(list []tensor.Shape) tensor.Shape {
	var m tensor.Shape
	for _, s := range list {
		m.B = max(m.B, s.B)
		m.T = max(m.T, s.T)
		m.C = max(m.C, s.C)
		m.OC = max(m.OC, s.OC)
	}
	return m
}
