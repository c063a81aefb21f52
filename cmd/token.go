// Package cmd provides the camerad CLI subcommands.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/camlink/camerad/internal/auth"
)

// CreateTokenCmd creates the token command, which mints a signed
// access token for the control channel.
func CreateTokenCmd() *cobra.Command {
	var secret string
	var userID string
	var role string
	var lifetime time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token",
		Long: `Generates an HMAC-signed access token for the WebSocket control channel. ` +
			`The secret must match the running daemon's security.token_secret.`,
		Run: func(_ *cobra.Command, _ []string) {
			if secret == "" {
				secret = os.Getenv("CAMERAD_JWT_SECRET")
			}
			if secret == "" {
				fmt.Fprintln(os.Stderr, "error: secret is required (--secret or CAMERAD_JWT_SECRET)")
				os.Exit(1)
			}

			manager, err := auth.NewTokenManager(secret)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			token, err := manager.Generate(userID, auth.Role(role), lifetime)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to CAMERAD_JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user", "admin", "User id claim")
	cmd.Flags().StringVar(&role, "role", "viewer", "Role: viewer, operator, or admin")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 24*time.Hour, "Token lifetime")
	return cmd
}
