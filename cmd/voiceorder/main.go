package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var quiet bool
	root := &cobra.Command{
		Use:   "voiceorder",
		Short: "Voice food-ordering call service",
		Long: `voiceorder answers phone calls and takes food orders end to end:
ordering, address capture, payment, dispatch, tracking and support.

  voiceorder serve      Run the HTTP server for Twilio webhooks and media streams
  voiceorder simulate   Drive a call from the terminal, one utterance per line`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Include sub-second precision in all log timestamps
			log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
			if quiet {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "discard log output")
	root.AddCommand(serveCmd(), simulateCmd())
	return root
}
