// Package cli implements the awaybot commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/logging"
)

var (
	envFile string
	cfg     *config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "awaybot",
	Short:         "Personal chat assistant that answers while you are away",
	Long:          "awaybot replies to your chat contacts while you are offline, remembering facts, history and shared files per contact.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		logging.Setup(cfg.Log, os.Stderr)
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "Path to a .env file (default: ./.env)")
}

// Execute runs the root command and reports a failure on stderr.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
