package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/flappah/netatmo2wow/pkg/database"
	"github.com/flappah/netatmo2wow/pkg/puller/netatmo"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Netatmo authorization commands",
	Long: `Obtain Netatmo OAuth tokens. Tokens are stored in the database when it
is enabled, otherwise a config snippet is printed.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize with your Netatmo username and password",
	RunE:  runAuthLogin,
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the URL to authorize the bridge in a browser",
	RunE:  runAuthURL,
}

var (
	exchangeCode  string
	exchangeState string
)

var authExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange an authorization code for tokens",
	RunE:  runAuthExchange,
}

func init() {
	authExchangeCmd.Flags().StringVar(&exchangeCode, "code", "", "authorization code from the redirect")
	authExchangeCmd.Flags().StringVar(&exchangeState, "state", "", "state from the redirect")
	authExchangeCmd.MarkFlagRequired("code")
	authExchangeCmd.MarkFlagRequired("state")

	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authURLCmd, authExchangeCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app := appFrom(ctx)

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Netatmo username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	fmt.Print("Netatmo password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	if len(passwordBytes) == 0 {
		return fmt.Errorf("password cannot be empty")
	}

	db, err := app.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	client := app.newClient()
	if err := client.Login(ctx, username, string(passwordBytes)); err != nil {
		return fmt.Errorf("netatmo login failed: %w", err)
	}

	return reportTokens(cmd.OutOrStdout(), app, db, client)
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app := appFrom(ctx)

	client := app.newClient()
	authURL, state, err := client.GetAuthorizationURL()
	if err != nil {
		return err
	}

	db, err := app.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := database.NewTokenStore(db, app.Config.Netatmo.ClientID).Invalidate(state); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in a browser and grant access:")
	fmt.Fprintln(out, authURL)
	if db == nil {
		fmt.Fprintf(out, "\nThen run: netatmo2wow auth exchange --state %s --code <code>\n", state)
	}
	return nil
}

func runAuthExchange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app := appFrom(ctx)

	db, err := app.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	client, _, err := app.restoreClient(ctx, db)
	if err != nil {
		return err
	}
	// Without a database the state printed by "auth url" cannot be
	// recovered, so the one given on the command line is trusted.
	if db == nil {
		client.SetState(exchangeState)
	}

	if err := client.GetAccessTokenFromCode(ctx, exchangeCode, exchangeState); err != nil {
		return err
	}

	return reportTokens(cmd.OutOrStdout(), app, db, client)
}

// tokenSnippet is the netatmo config section printed when there is no
// database to hold the tokens
type tokenSnippet struct {
	Netatmo struct {
		AccessToken  string `yaml:"access_token"`
		RefreshToken string `yaml:"refresh_token"`
		TokenExpiry  string `yaml:"token_expiry"`
	} `yaml:"netatmo"`
}

func reportTokens(w io.Writer, app *App, db *database.DatabaseManager, client *netatmo.Client) error {
	saved, err := app.persistTokens(db, client)
	if err != nil {
		return err
	}
	if saved {
		fmt.Fprintln(w, "Netatmo tokens stored in the database.")
		return nil
	}

	access, refresh, expiry := client.Tokens()
	var snippet tokenSnippet
	snippet.Netatmo.AccessToken = access
	snippet.Netatmo.RefreshToken = refresh
	snippet.Netatmo.TokenExpiry = expiry.UTC().Format(time.RFC3339)

	fmt.Fprintln(w, "Add the following to your configuration:")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(snippet)
}
