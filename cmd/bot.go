package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const redacted = "********"

func newBotCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Configure, deploy and control trading bots",
	}

	cmd.AddCommand(
		newBotConfigCmd(app),
		newBotDeployCmd(app),
		newBotControlCmd(app, ports.BotControlStart, "Start a deployed bot"),
		newBotControlCmd(app, ports.BotControlStop, "Stop a deployed bot"),
		newBotLogsCmd(app),
		newBotStatusCmd(app),
		newBotEventsCmd(app),
	)

	return cmd
}

func newBotConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bot configurations",
	}

	cmd.AddCommand(newBotConfigSetCmd(app), newBotConfigShowCmd(app), newBotConfigListCmd(app))

	return cmd
}

func newBotConfigSetCmd(app *app) *cobra.Command {
	var file string
	var strategy string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Validate and save a bot configuration from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read bot config: %w", err)
			}

			var botConfig domain.BotConfig
			if err := yaml.Unmarshal(data, &botConfig); err != nil {
				return fmt.Errorf("decode bot config %s: %w", file, err)
			}
			if strategy != "" {
				botConfig.Strategy = strategy
			}

			saved, err := app.deploy.SetConfig(cmd.Context(), botConfig)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) for strategy %s\n", saved.Name, saved.ID, saved.Config.Strategy)
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Override the strategy named in the file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newBotConfigShowCmd(app *app) *cobra.Command {
	var strategy string
	var asJSON bool
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored configuration of a strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configuration, err := app.deploy.Config(cmd.Context(), strategy)
			if err != nil {
				return err
			}

			botConfig := configuration.Config
			if !reveal {
				botConfig.Exchange = redactExchange(botConfig.Exchange)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(botConfig)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(botConfig); err != nil {
				return fmt.Errorf("encode bot config: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON instead of YAML")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show exchange credentials")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func redactExchange(exchange domain.ExchangeConfig) domain.ExchangeConfig {
	for _, field := range []*string{&exchange.Key, &exchange.Secret, &exchange.Password} {
		if *field != "" {
			*field = redacted
		}
	}
	return exchange
}

func newBotConfigListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored bot configurations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.auth.GetUser(cmd.Context())
			if err != nil {
				return err
			}
			configurations, err := app.store.ListBotConfigurations(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			if len(configurations) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No bot configurations.")
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTRATEGY\tMODE\tEXCHANGE\tDRY RUN")
			for _, c := range configurations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", c.Name, c.Config.Strategy, c.Config.TradingMode, c.Config.Exchange.Name, c.Config.DryRun)
			}
			return tw.Flush()
		},
	}
}

func newBotDeployCmd(app *app) *cobra.Command {
	var strategy string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a strategy, creating a paper-trading configuration on first use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deploy := func(ctx context.Context) (ports.DeployResult, error) {
				return app.deploy.Deploy(ctx, strategy)
			}

			if asJSON {
				result, err := deploy(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{"strategy": strategy, "result": result.Result})
			}

			result, err := deployWithProgress(cmd.Context(), cmd.ErrOrStderr(), strategy, deploy)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deployed %s: %s\n", strategy, result.Result)
			return err
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func newBotControlCmd(app *app, action ports.BotControl, short string) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.deploy.Control(cmd.Context(), strategy, action)
			if err != nil {
				return err
			}

			message := result.Status
			if result.Message != "" {
				message = strings.TrimSpace(message + " " + result.Message)
			}
			if message == "" {
				message = "ok"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", action, strategy, message)
			return err
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func newBotLogsCmd(app *app) *cobra.Command {
	var strategy string
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of a bot's log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logLines, err := app.deploy.Logs(cmd.Context(), strategy, lines)
			if err != nil {
				return err
			}
			for _, line := range logLines {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	cmd.Flags().IntVar(&lines, "lines", application.DefaultLogLines, "Number of lines")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}
