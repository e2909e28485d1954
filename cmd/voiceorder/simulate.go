package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/chadiek/voice-order/internal/config"
)

func simulateCmd() *cobra.Command {
	var caller string
	var useLLM bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a call from the terminal, one utterance per line",
		Long: `simulate starts a call without any telephony. Each input line is one
caller utterance; the agent's reply is printed after it. Payments are
simulated and addresses are checked for plausibility only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cfg.SessionStore = "memory"
			c, err := buildCore(cfg, coreOptions{offline: true, llm: useLLM})
			if err != nil {
				return err
			}
			defer c.store.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()
			callID := "SIM" + ulid.Make().String()
			s, greeting, err := c.orch.StartCall(ctx, callID, caller)
			if err != nil {
				return err
			}
			defer func() { _ = c.orch.EndCall(context.Background(), callID) }()
			fmt.Fprintf(out, "%s> %s\n", s.ActiveAgent, greeting.Text)

			in := bufio.NewScanner(cmd.InOrStdin())
			for in.Scan() {
				line := strings.TrimSpace(in.Text())
				if line == "" {
					continue
				}
				reply := c.orch.HandleTurn(ctx, s.ID, line)
				fmt.Fprintf(out, "%s> %s\n", reply.Agent, reply.Text)
				if reply.EndCall {
					if reply.Escalate {
						fmt.Fprintln(out, "-- transferred to a person --")
					}
					fmt.Fprintln(out, "-- call ended --")
					return nil
				}
			}
			return in.Err()
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "+15550100000", "caller id presented for the call")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "answer free-form support questions with Cerebras when CEREBRAS_API_KEY is set")
	return cmd
}
