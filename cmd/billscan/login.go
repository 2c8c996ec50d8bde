package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"billscan/internal/client"
)

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google",
	Long: `Prints a sign-in URL to open in a browser. After Google sign-in the server
redirects back to a temporary local listener, and the session is saved.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE:  runLogout,
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the signed-in account",
	RunE:  runMe,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the browser sign-in")
	rootCmd.AddCommand(loginCmd, logoutCmd, meCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, s, err := loadSession()
	if err != nil {
		return err
	}

	cb, err := client.ListenCallback("")
	if err != nil {
		return err
	}
	defer cb.Close()

	api := client.New(s, nil)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in your browser to sign in:")
	fmt.Fprintf(out, "\n  %s\n\n", api.LoginURL(cb.RedirectURL()))
	fmt.Fprintln(out, "Waiting for sign-in...")

	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()

	token, err := cb.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for sign-in: %w", err)
	}

	user, err := api.WithToken(token).Me(ctx)
	if err != nil {
		return fmt.Errorf("checking new session: %w", err)
	}

	s.Token, s.Email, s.Name = token, user.Email, user.Name
	if err := store.Save(s); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Fprintf(out, "Signed in as %s\n", user.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, s, err := loadSession()
	if err != nil {
		return err
	}
	if err := store.Save(s.SignedOut()); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runMe(cmd *cobra.Command, args []string) error {
	api, err := signedInClient()
	if err != nil {
		return err
	}
	user, err := api.Me(cmd.Context())
	if err != nil {
		return explain(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Email: %s\n", user.Email)
	if user.Name != "" {
		fmt.Fprintf(out, "Name:  %s\n", user.Name)
	}
	if !user.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Since: %s\n", user.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
