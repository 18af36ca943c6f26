package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/backend"
	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
	"github.com/samcharles93/matfwd/internal/vectors"
)

const defaultTolerance = 1e-5

func verifyCmd() *cli.Command {
	var (
		suitePath string
		tol       float64
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check host, device and oracle results against a vector suite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "suite",
				Usage:       "vector suite (.json, .yaml); default is a generated suite",
				Destination: &suitePath,
			},
			&cli.Float64Flag{
				Name:        "tolerance",
				Aliases:     []string{"tol"},
				Usage:       "relative and absolute tolerance for device and oracle checks",
				Value:       defaultTolerance,
				Destination: &tol,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyVerifyConfig(cmd, loadedConfig, &tol)

			suite, err := loadVerifySuite(suitePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(suite.Cases) == 0 {
				return cli.Exit("error: suite has no cases", 1)
			}
			shapes := make([]tensor.Shape, len(suite.Cases))
			for i, c := range suite.Cases {
				shapes[i] = c.Shape
			}

			session, resolved, err := backend.Open(backendName, maxShape(shapes), localSize, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			defer func() { _ = session.Release() }()
			log.Info("verifying suite", "cases", len(suite.Cases), "backend", resolved, "tolerance", tol)

			failures := verifySuite(cmd.Root().Writer, suite, session, tol)
			if failures > 0 {
				return cli.Exit(fmt.Sprintf("verify: %d check(s) failed", failures), 1)
			}
			return nil
		},
	}
}

func loadVerifySuite(path string) (*vectors.Suite, error) {
	if path != "" {
		return vectors.Load(path)
	}
	list, err := parseShapes(defaultSuiteShapes)
	if err != nil {
		return nil, err
	}
	suite := &vectors.Suite{Version: vectors.SuiteVersion}
	for i, s := range list {
		c, err := vectors.Generate(fmt.Sprintf("generated%02d", i), s, int64(1+10*i))
		if err != nil {
			return nil, err
		}
		suite.Cases = append(suite.Cases, c)
	}
	return suite, nil
}

// verifySuite prints one row per case and returns the number of failed
// checks. session may be nil, in which case the device column is skipped.
func verifySuite(w io.Writer, suite *vectors.Suite, session *device.Session, tol float64) int {
	failures := 0
	status := func(m *vectors.Mismatch) string {
		if m == nil {
			return "PASS"
		}
		failures++
		return "FAIL"
	}

	_, _ = fmt.Fprintf(w, "%-24s %-24s %-6s %-6s %-6s\n", "CASE", "SHAPE", "HOST", "DEVICE", "ORACLE")
	var details []string
	for i := range suite.Cases {
		c := &suite.Cases[i]
		s := c.Shape
		out := make([]float32, s.OutputLen())

		bias := c.Bias
		if bias == nil {
			bias = make([]float32, s.BiasLen())
		}
		linear.ForwardHostBiased(out, c.Input, c.Weight, bias, s.B, s.T, s.C, s.OC)
		hm := vectors.Check(c, out, true, tol)
		host := status(hm)

		dev := "skip"
		var dm *vectors.Mismatch
		if session != nil {
			dout := make([]float32, s.OutputLen())
			if err := linear.ForwardDevice(session, dout, c.Input, c.Weight, s.B, s.T, s.C, s.OC); err != nil {
				failures++
				dev = "ERROR"
				details = append(details, fmt.Sprintf("%s: device: %v", c.Name, err))
			} else {
				dm = vectors.Check(c, dout, false, tol)
				dev = status(dm)
			}
		}

		oracle := "ERROR"
		var om *vectors.Mismatch
		if got, err := vectors.Oracle(s, c.Input, c.Weight, c.Bias); err != nil {
			failures++
			details = append(details, fmt.Sprintf("%s: oracle: %v", c.Name, err))
		} else {
			om = vectors.Check(c, got, true, tol)
			oracle = status(om)
		}

		for _, m := range []*vectors.Mismatch{hm, dm, om} {
			if m != nil {
				details = append(details, m.Error())
			}
		}
		_, _ = fmt.Fprintf(w, "%-24s %-24s %-6s %-6s %-6s\n", c.Name, fmt.Sprintf("%dx%dx%dx%d", s.B, s.T, s.C, s.OC), host, dev, oracle)
	}
	for _, d := range details {
		_, _ = fmt.Fprintln(w, "  "+d)
	}
	return failures
}
