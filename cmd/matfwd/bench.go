package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sys/cpu"

	"github.com/samcharles93/matfwd/internal/backend"
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
	"github.com/samcharles93/matfwd/internal/vectors"
)

func benchCmd() *cli.Command {
	var (
		shape      tensor.Shape
		warmupRuns int
		benchRuns  int
	)

	flags := shapeFlags(&shape, tensor.Shape{B: 8, T: 128, C: 512, OC: 512})
	flags = append(flags,
		&cli.IntFlag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.IntFlag{
			Name:        "runs",
			Usage:       "number of timed runs",
			Value:       5,
			Destination: &benchRuns,
		},
	)

	return &cli.Command{
		Name:    "bench",
		Aliases: []string{"benchmark"},
		Usage:   "Time the host and device forward paths",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			w := cmd.Root().Writer
			if benchRuns < 1 {
				return cli.Exit("error: --runs must be >= 1", 1)
			}

			c, err := vectors.Generate("bench", shape, 1)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			session, resolved, err := backend.Open(backendName, shape, localSize, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open backend: %v", err), 1)
			}
			exec := linear.NewExecutor(session, resolved, log)
			defer func() { _ = exec.Close() }()

			printSystem(w)
			_, _ = fmt.Fprintf(w, "shape:      %s\n", shape)
			_, _ = fmt.Fprintf(w, "backend:    %s\n", resolved)
			_, _ = fmt.Fprintf(w, "runs:       %d (warmup %d)\n\n", benchRuns, warmupRuns)

			out := make([]float32, shape.OutputLen())
			modes := []linear.Mode{linear.ModeHost}
			if exec.Mode() == linear.ModeDevice {
				modes = append(modes, linear.ModeDevice)
			}
			flops := 2 * float64(shape.B) * float64(shape.T) * float64(shape.C) * float64(shape.OC)
			for _, mode := range modes {
				for i := 0; i < warmupRuns; i++ {
					if _, err := exec.ForwardMode(mode, out, c.Input, c.Weight, c.Bias, shape); err != nil {
						return cli.Exit(fmt.Sprintf("error: %s warmup: %v", mode, err), 1)
					}
				}
				var total, best time.Duration
				for i := 0; i < benchRuns; i++ {
					start := time.Now()
					if _, err := exec.ForwardMode(mode, out, c.Input, c.Weight, c.Bias, shape); err != nil {
						return cli.Exit(fmt.Sprintf("error: %s run: %v", mode, err), 1)
					}
					d := time.Since(start)
					total += d
					if best == 0 || d < best {
						best = d
					}
				}
				avg := total / time.Duration(benchRuns)
				_, _ = fmt.Fprintf(w, "%-8s avg %-12s best %-12s %8.2f GFLOP/s  max |Δ| %g\n",
					mode, avg, best, flops/avg.Seconds()/1e9, tensor.MaxAbsDiff(out, c.Expected))
			}
			log.Debug("bench complete", "stats", fmt.Sprintf("%+v", exec.Stats()))
			return nil
		},
	}
}

func printSystem(w io.Writer) {
	_, _ = fmt.Fprintf(w, "go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "cpus:       %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	features := cpuFeatures()
	if len(features) == 0 {
		features = []string{"none detected"}
	}
	_, _ = fmt.Fprintf(w, "cpu flags:  %s\n", strings.Join(features, " "))
}

func cpuFeatures() []string {
	var f []string
	add := func(name string, ok bool) {
		if ok {
			f = append(f, name)
		}
	}
	add("sse4.1", cpu.X86.HasSSE41)
	add("avx", cpu.X86.HasAVX)
	add("avx2", cpu.X86.HasAVX2)
	add("fma", cpu.X86.HasFMA)
	add("avx512f", cpu.X86.HasAVX512F)
	add("asimd", cpu.ARM64.HasASIMD)
	add("sve", cpu.ARM64.HasSVE)
	return f
}
