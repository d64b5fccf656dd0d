// ABOUTME: Sync commands for Charm cloud synchronization
// ABOUTME: Provides status, manual sync, and a listing of synced documents
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/charm"
	"github.com/harper/sidekick-pipeline/internal/config"
)

// NewSyncCmd creates the sync command group
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage Charm cloud synchronization",
		Long: `Manage synchronization with Charm cloud.

With SIDEKICK_STORE=charm, compaction state, settings, and the summary
cache are stored in Charm KV and sync across devices linked to the same
Charm account.`,
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncNowCmd())
	cmd.AddCommand(newSyncKeysCmd())

	return cmd
}

// openCharm connects to Charm KV using the environment configuration
func openCharm() (*charm.Client, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	client, err := charm.NewClient(&charm.Config{
		Host:     cfg.CharmHost,
		DBName:   cfg.CharmDBName,
		AutoSync: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Charm: %w", err)
	}
	return client, nil
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status and connection info",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer client.Close()

			w := cmd.OutOrStdout()
			id, err := client.ID()
			if err != nil {
				fmt.Fprintln(w, "Status: Not connected")
				fmt.Fprintln(w, "Check your SSH keys and CHARM_HOST")
				return nil
			}

			fmt.Fprintln(w, "Status: Connected")
			fmt.Fprintf(w, "User ID: %s\n", id)
			return nil
		},
	}
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Force immediate sync with Charm cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer client.Close()

			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Syncing...")
			}
			if err := client.Sync(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
			}
			return nil
		},
	}
}

func newSyncKeysCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List documents stored in Charm",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openCharm()
			if err != nil {
				return err
			}
			defer client.Close()

			keys, err := client.Keys(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(w, "No documents found")
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(w, k)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list keys with this prefix")

	return cmd
}
