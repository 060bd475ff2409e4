package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bnema/botsmith/internal/adapters/sanitize"
	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

func newStrategyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Inspect strategy names and persisted strategy files",
	}

	cmd.AddCommand(
		newStrategyNameCmd(app),
		newStrategyListCmd(app),
		newStrategyShowCmd(app),
		newStrategyLoadCmd(app),
	)

	return cmd
}

func newStrategyNameCmd(app *app) *cobra.Command {
	var session sessionFlags
	var proposed string

	cmd := &cobra.Command{
		Use:   "name",
		Short: "Resolve the strategy identity locked to a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			namer := application.NewStrategyNamer(app.names, app.clock, app.logger)
			identity, err := namer.Resolve(cmd.Context(), domain.SessionID(session.resolve(app)), proposed)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "file: %s\nclass: %s\n", identity.FileName, identity.ClassName)
			return err
		},
	}

	session.register(cmd)
	cmd.Flags().StringVar(&proposed, "proposed", "", "Proposed file or class name")

	return cmd
}

func newStrategyListCmd(app *app) *cobra.Command {
	var session sessionFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List strategies saved from a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.auth.GetUser(cmd.Context())
			if err != nil {
				return err
			}
			scripts, err := app.store.ListScriptsByChat(cmd.Context(), user.ID, session.resolve(app))
			if err != nil {
				return err
			}
			if len(scripts) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No strategies saved for this chat.")
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tUPDATED\tDESCRIPTION")
			for _, script := range scripts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", script.Name, script.UpdatedAt.Format("2006-01-02 15:04"), script.Description)
			}
			return tw.Flush()
		},
	}

	session.register(cmd)

	return cmd
}

func newStrategyShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := app.auth.GetUser(cmd.Context())
			if err != nil {
				return err
			}
			script, err := app.store.GetScript(cmd.Context(), user.ID, domain.StrategyNameFromPath(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sanitize.Content(script.Content))
			return err
		},
	}
}

func newStrategyLoadCmd(app *app) *cobra.Command {
	var session sessionFlags

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Write the strategies saved from a chat into the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workbench := app.newWorkbench(session.resolve(app), cmd.ErrOrStderr())
			loaded, err := workbench.LoadStrategyFiles(cmd.Context())
			if err != nil {
				return err
			}
			if len(loaded) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No strategies to load.")
				return err
			}
			for _, file := range loaded {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), file); err != nil {
					return err
				}
			}
			return nil
		},
	}

	session.register(cmd)

	return cmd
}
