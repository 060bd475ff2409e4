package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

const skipWireAnnotation = "botsmith/skip-wire"

func Execute() error {
	rootCmd, app := newRootCmd()
	err := rootCmd.Execute()
	return errors.Join(err, app.close())
}

func newRootCmd() (*cobra.Command, *app) {
	app := newApp()

	rootCmd := &cobra.Command{
		Use:           "botsmith",
		Short:         "botsmith: build, deploy and watch trading bots from the terminal",
		Long:          "botsmith turns streamed assistant replies into strategy files and shell actions, persists strategies, deploys them as bots and reports their live status.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, skip := cmd.Annotations[skipWireAnnotation]; skip {
				return nil
			}
			return app.wire(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.opts.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&app.opts.jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&app.opts.profile, "profile", "default", "Credentials profile")

	rootCmd.AddCommand(
		newVersionCmd(),
		newAuthCmd(app),
		newChatCmd(app),
		newStrategyCmd(app),
		newBotCmd(app),
	)

	return rootCmd, app
}
