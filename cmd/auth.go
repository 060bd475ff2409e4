package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage sign-in credentials",
	}

	cmd.AddCommand(newAuthLoginCmd(app), newAuthLogoutCmd(app), newAuthWhoAmICmd(app))

	return cmd
}

func newAuthLoginCmd(app *app) *cobra.Command {
	var userID string
	var email string
	var token string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the credentials of a signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expiresIn < 0 {
				return errors.New("--expires-in must not be negative")
			}
			login := application.LoginCommand{
				Profile:     app.opts.profile,
				UserID:      userID,
				Email:       email,
				AccessToken: token,
			}
			if expiresIn > 0 {
				login.ExpiresAt = app.now().Add(expiresIn)
			}

			user, err := app.authService.Login(cmd.Context(), login)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, user.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User ID")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Token lifetime (0 never expires)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newAuthLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.authService.Logout(cmd.Context(), app.opts.profile); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		},
	}
}

func newAuthWhoAmICmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			identity, err := app.authService.WhoAmI(cmd.Context(), app.opts.profile)
			if errors.Is(err, domain.ErrUnauthenticated) {
				return errors.New("not signed in; run 'botsmith auth login'")
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(identity)
			}

			out := fmt.Sprintf("%s (%s) profile=%s", identity.User.Email, identity.User.ID, identity.Profile)
			if identity.ExpiresAt != "" {
				out += " expires=" + identity.ExpiresAt
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}
