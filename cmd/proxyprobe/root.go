package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nao1215/proxyprobe/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for proxyprobe.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxyprobe",
		Short: "Liveness and latency tester for proxy share links",
		Long: `proxyprobe checks whether proxy servers given as share links
(vless://, vmess://, trojan://, ss://) are alive and how fast they answer.

Each candidate is resolved, connected to (over TLS when the link asks for it)
and sent the smallest handshake its protocol allows. A candidate that answers
with at least one byte is alive; everything else is dead with a reason.

Results are kept in a local history database so runs can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewProbeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates a credential-masking logger that writes to w.
func setupLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	if asJSON, err := cmd.Flags().GetBool("log-json"); err == nil && asJSON {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}
