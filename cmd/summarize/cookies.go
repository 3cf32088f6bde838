package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/summarize/internal/cookies"
	"github.com/lorenzotomasdiez/summarize/internal/output"
)

func newCookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Show where the X (Twitter) session cookies would be read from",
		Args:  cobra.NoArgs,
		RunE:  runCookies,
	}
	cmd.Flags().String("auth-token", "", "auth_token value (overrides AUTH_TOKEN)")
	cmd.Flags().String("ct0", "", "ct0 value (overrides CT0)")
	cmd.Flags().String("cookie-source", "", "Browsers to try, e.g. \"firefox,chrome\" (overrides TWITTER_COOKIE_SOURCE)")
	cmd.Flags().String("chrome-profile", "", "Chrome profile name")
	cmd.Flags().String("firefox-profile", "", "Firefox profile name or path")
	return cmd
}

func runCookies(cmd *cobra.Command, args []string) error {
	authToken, _ := cmd.Flags().GetString("auth-token")
	ct0, _ := cmd.Flags().GetString("ct0")
	source, _ := cmd.Flags().GetString("cookie-source")
	chromeProfile, _ := cmd.Flags().GetString("chrome-profile")
	firefoxProfile, _ := cmd.Flags().GetString("firefox-profile")

	opts := cookies.Options{
		Env:            cookies.LoadEnv(os.LookupEnv),
		AuthToken:      authToken,
		CT0:            ct0,
		ChromeProfile:  chromeProfile,
		FirefoxProfile: firefoxProfile,
	}
	var flagWarnings []string
	if source != "" {
		opts.Sources, flagWarnings = cookies.ParseSourceList(source)
	}

	res := cookies.Resolve(cmd.Context(), opts)
	res.Warnings = append(flagWarnings, res.Warnings...)
	output.NewReporter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Cookies(res)
	return nil
}
