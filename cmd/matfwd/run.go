package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/backend"
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
	"github.com/samcharles93/matfwd/internal/vectors"
)

func runCmd() *cli.Command {
	var (
		shape     tensor.Shape
		seed      int64
		noBias    bool
		mode      string
		suitePath string
		caseName  string
		show      int
		fatal     bool
	)

	flags := shapeFlags(&shape, tensor.Shape{B: 4, T: 64, C: 256, OC: 256})
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for random operands",
			Value:       1337,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "no-bias",
			Usage:       "compute without bias",
			Destination: &noBias,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "execution path (device, host; empty = backend default)",
			Destination: &mode,
		},
		&cli.StringFlag{
			Name:        "suite",
			Usage:       "take operands from a vector suite (.json, .yaml)",
			Destination: &suitePath,
		},
		&cli.StringFlag{
			Name:        "case",
			Usage:       "case name within --suite (default first case)",
			Destination: &caseName,
		},
		&cli.IntFlag{
			Name:        "show",
			Usage:       "number of output values to print",
			Value:       8,
			Destination: &show,
		},
		&cli.BoolFlag{
			Name:        "fatal",
			Usage:       "terminate the process on any device failure",
			Destination: &fatal,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run one forward pass and print a summary",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			w := cmd.Root().Writer

			runMode, err := linear.ParseMode(mode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --mode: %v", err), 1)
			}
			c, err := loadRunCase(suitePath, caseName, shape, seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			bias := c.Bias
			if noBias {
				bias = nil
			}

			session, resolved, err := backend.Open(backendName, c.Shape, localSize, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			out := make([]float32, c.Shape.OutputLen())

			var (
				used  linear.Mode
				start = time.Now()
			)
			if fatal && session != nil && runMode != linear.ModeHost {
				s := c.Shape
				linear.MustForwardDevice(log, session, out, c.Input, c.Weight, s.B, s.T, s.C, s.OC)
				if bias != nil {
					linear.AddBias(out, bias, s.B, s.T, s.OC)
				}
				_ = session.Release()
				used = linear.ModeDevice
			} else {
				exec := linear.NewExecutor(session, resolved, log)
				defer func() { _ = exec.Close() }()
				used, err = exec.ForwardMode(runMode, out, c.Input, c.Weight, bias, c.Shape)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: forward: %v", err), 1)
				}
			}
			elapsed := time.Since(start)

			ref := make([]float32, c.Shape.OutputLen())
			if bias != nil {
				linear.ForwardHostBiased(ref, c.Input, c.Weight, bias, c.Shape.B, c.Shape.T, c.Shape.C, c.Shape.OC)
			} else {
				linear.ForwardHost(ref, c.Input, c.Weight, c.Shape.B, c.Shape.T, c.Shape.C, c.Shape.OC)
			}

			var sum float64
			for _, v := range out {
				sum += float64(v)
			}
			_, _ = fmt.Fprintf(w, "case:      %s\n", c.Name)
			_, _ = fmt.Fprintf(w, "shape:     %s\n", c.Shape)
			_, _ = fmt.Fprintf(w, "backend:   %s\n", resolved)
			_, _ = fmt.Fprintf(w, "mode:      %s\n", used)
			_, _ = fmt.Fprintf(w, "bias:      %t\n", bias != nil)
			_, _ = fmt.Fprintf(w, "elapsed:   %s\n", elapsed)
			_, _ = fmt.Fprintf(w, "checksum:  %.6f\n", sum)
			_, _ = fmt.Fprintf(w, "max |Δ| vs host: %g\n", tensor.MaxAbsDiff(out, ref))
			n := min(show, len(out))
			if n > 0 {
				_, _ = fmt.Fprintf(w, "out[:%d]:  %v\n", n, out[:n])
			}
			return nil
		},
	}
}

func loadRunCase(path, name string, shape tensor.Shape, seed int64) (vectors.Case, error) {
	if path == "" {
		return vectors.Generate("random", shape, seed)
	}
	suite, err := vectors.Load(path)
	if err != nil {
		return vectors.Case{}, err
	}
	if len(suite.Cases) == 0 {
		return vectors.Case{}, fmt.Errorf("suite %s has no cases", path)
	}
	if name == "" {
		return suite.Cases[0], nil
	}
	for _, c := range suite.Cases {
		if c.Name == name {
			return c, nil
		}
	}
	return vectors.Case{}, fmt.Errorf("suite %s has no case %q", path, name)
}
