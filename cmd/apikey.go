package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/camlink/camerad/internal/auth"
)

// CreateAPIKeyCmd creates the apikey command group for managing the
// persisted key store.
func CreateAPIKeyCmd() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  `Creates, lists, and revokes API keys in the daemon's key store file.`,
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", "/opt/camerad/api-keys.json", "Key store path")

	cmd.AddCommand(createKeyCmd(&storePath))
	cmd.AddCommand(listKeysCmd(&storePath))
	cmd.AddCommand(revokeKeyCmd(&storePath))
	return cmd
}

func openStore(path string) *auth.KeyStore {
	store, err := auth.OpenKeyStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return store
}

func createKeyCmd(storePath *string) *cobra.Command {
	var name string
	var role string
	var lifetime time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Run: func(_ *cobra.Command, _ []string) {
			store := openStore(*storePath)
			plaintext, record, err := store.Create(name, auth.Role(role), lifetime)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("key_id: %s\n", record.KeyID)
			fmt.Printf("key:    %s\n", plaintext)
			fmt.Println("Store the key now; it is not recoverable later.")
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Key name (required)")
	cmd.Flags().StringVar(&role, "role", "viewer", "Role: viewer, operator, or admin")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "Expiry (0 = never)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listKeysCmd(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Run: func(_ *cobra.Command, _ []string) {
			store := openStore(*storePath)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY_ID\tNAME\tROLE\tACTIVE\tCREATED\tEXPIRES")
			for _, rec := range store.List() {
				expires := "-"
				if rec.ExpiresAt != nil {
					expires = rec.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					rec.KeyID, rec.Name, rec.Role, rec.IsActive,
					rec.CreatedAt.Format(time.RFC3339), expires)
			}
			_ = w.Flush()
		},
	}
}

func revokeKeyCmd(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store := openStore(*storePath)
			if err := store.Revoke(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("revoked %s\n", args[0])
		},
	}
}
