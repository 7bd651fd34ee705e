package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/internal/app"
)

var (
	loginUsername string
	loginPassword string
	loginRemember bool

	registerUsername string
	registerEmail    string
	registerPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the task service",
	Long: `Log in with a username and password. Missing values are prompted for.

With --remember the token is kept in the data directory and later commands
reuse it. Without it the login lasts for the current process only, which is
useful inside "taskdesk shell".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := promptFor(cmd)
		if err := p.askIfEmpty(&loginUsername, "Username"); err != nil {
			return err
		}
		if err := p.askIfEmpty(&loginPassword, "Password"); err != nil {
			return err
		}
		req := api.LoginRequest{Username: loginUsername, Password: loginPassword}
		return withApp(cmd, func(a *app.App) error {
			return login(cmd.Context(), a, cmd.OutOrStdout(), req, loginRemember)
		})
	},
}

func login(ctx context.Context, a *app.App, out io.Writer, req api.LoginRequest, remember bool) error {
	if err := a.Session.Login(ctx, req, remember); err != nil {
		return errors.New(a.Session.State().Err)
	}
	s := a.Session.State()
	fmt.Fprintf(out, "Logged in as %s", s.Identity.Username)
	switch {
	case remember:
		fmt.Fprintln(out, " (remembered)")
	case shared != nil:
		fmt.Fprintln(out, " (until the shell exits)")
	default:
		fmt.Fprintln(out, " (this command only; use --remember to stay logged in)")
	}
	return nil
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in to it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := promptFor(cmd)
		if err := p.askIfEmpty(&registerUsername, "Username"); err != nil {
			return err
		}
		if err := p.askIfEmpty(&registerEmail, "Email"); err != nil {
			return err
		}
		if err := p.askIfEmpty(&registerPassword, "Password"); err != nil {
			return err
		}
		req := api.RegisterRequest{Username: registerUsername, Email: registerEmail, Password: registerPassword}
		return withApp(cmd, func(a *app.App) error {
			if err := a.Session.Register(cmd.Context(), req); err != nil {
				return errors.New(a.Session.State().Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", a.Session.State().Identity.Username)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			a.Session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(a *app.App) error {
			printUser(cmd.OutOrStdout(), a.Session.State().Identity)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
	loginCmd.Flags().BoolVarP(&loginRemember, "remember", "r", false, "Keep the login across commands")

	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "Username")
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Email address")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password")
}
