package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"billscan/internal/client"
)

var (
	sessionFile string
	serverURL   string
)

var rootCmd = &cobra.Command{
	Use:   "billscan",
	Short: "Browse the bills found in your Gmail",
	Long: `billscan is a terminal client for the billscan server. Sign in with Google
once, then list and summarize your bills or ask the server to scan your mailbox again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session", "", "session file (default is <config dir>/billscan/session.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default is the saved server or "+client.DefaultBaseURL+")")
}

// sessionStore returns the store behind --session
func sessionStore() (*client.FileStore, error) {
	if sessionFile != "" {
		return client.NewFileStore(sessionFile), nil
	}
	path, err := client.DefaultSessionPath()
	if err != nil {
		return nil, err
	}
	return client.NewFileStore(path), nil
}

// loadSession reads the saved session, with --server taking precedence
func loadSession() (*client.FileStore, client.Session, error) {
	store, err := sessionStore()
	if err != nil {
		return nil, client.Session{}, err
	}
	s, err := store.Load()
	if err != nil {
		return nil, client.Session{}, err
	}
	if serverURL != "" {
		s.BaseURL = serverURL
	}
	return store, s, nil
}

// signedInClient returns an API client, or an error if there is no session
func signedInClient() (*client.Client, error) {
	_, s, err := loadSession()
	if err != nil {
		return nil, err
	}
	if !s.LoggedIn() {
		return nil, errNotSignedIn
	}
	return client.New(s, nil), nil
}

var errNotSignedIn = errors.New("not signed in, run 'billscan login' first")

// explain turns an expired session into a hint
func explain(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%w: run 'billscan login' again", err)
	}
	return err
}
