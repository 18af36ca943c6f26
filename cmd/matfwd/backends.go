package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/backend"
)

func backendsCmd() *cli.Command {
	return &cli.Command{
		Name:  "backends",
		Usage: "List execution backends compiled into this build",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			selected, err := backend.Normalize(backendName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			for _, name := range []string{backend.Host, backend.Emu, backend.WGPU} {
				state := "unavailable"
				if backend.Has(name) {
					state = "available"
				}
				marker := " "
				if name == selected {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%s %-6s %s\n", marker, name, state)
			}
			_, _ = fmt.Fprintf(w, "selected: %s\n", selected)
			printSystem(w)
			return nil
		},
	}
}
