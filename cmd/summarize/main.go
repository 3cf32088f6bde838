package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/summarize/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "summarize",
		Short:         "Summarize tooling: free-model discovery and source credentials",
		Long:          "Keeps the free OpenRouter model list in ~/.summarize/config.json current by probing every :free model and persisting the ones that answer.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Root().PersistentFlags().GetString("env-file")
			return config.LoadDotEnv(envFile)
		},
	}

	root.PersistentFlags().String("api-key", "", "OpenRouter API key (overrides OPENROUTER_API_KEY env var)")
	root.PersistentFlags().String("config", "", "Config file to update (default $SUMMARIZE_CONFIG or ~/.summarize/config.json)")
	root.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment")

	root.AddCommand(newRefreshFreeCmd())
	root.AddCommand(newCookiesCmd())
	return root
}
