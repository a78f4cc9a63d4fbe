package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/lattice-discord/pkg/agent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

var (
	askThread  string
	askOffline bool
	askJSON    bool
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask <handler> <message...>",
	Short: "Run one agent turn and print the answer",
	Long:  "Handlers: " + handlerNames() + ". The alias ai selects assistant.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !askOffline {
			if err := cfg.ValidateLLM(); err != nil {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
		defer cancel()
		return ask(ctx, cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askThread, "thread", "", "conversation thread (default: <handler>_thread)")
	askCmd.Flags().BoolVar(&askOffline, "offline", false, "use the echo model and an in-memory store")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the result as JSON")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 3*time.Minute, "overall request timeout")
}

func handlerNames() string {
	var names []string
	for _, h := range prompts.All() {
		names = append(names, h.String())
	}
	return strings.Join(names, ", ")
}

func ask(ctx context.Context, out io.Writer, handler, message string) error {
	h, err := prompts.Parse(handler)
	if err != nil {
		return err
	}
	comps, err := buildComponents(ctx, cfg, logger, nil, askOffline)
	if err != nil {
		return err
	}
	defer comps.Close()

	res, err := comps.runner.Run(ctx, agent.Request{Handler: h, Query: message, ThreadID: askThread})
	if err != nil {
		return err
	}
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"answer":     res.Answer,
			"handler":    res.Handler,
			"provider":   res.Provider,
			"model":      res.Model,
			"elapsed_ms": res.Elapsed.Milliseconds(),
			"tools_used": res.ToolsUsed,
		})
	}
	_, err = fmt.Fprintf(out, "%s\n\n%s\n", res.Answer, res.Footer())
	return err
}
