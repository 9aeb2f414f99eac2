package commands

import (
	"github.com/spf13/cobra"

	"github.com/smsledger/smsledger/internal/buildinfo"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "smsledger",
		Short:   "Track a bank balance from SMS notifications",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./smsledger.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(
		newInitCommand(),
		newParseCommand(opts),
		newBalanceCommand(opts),
		newIngestCommand(opts),
		newConsumeCommand(opts),
		newPublishCommand(opts),
		newHistoryCommand(opts),
	)

	return rootCmd
}
