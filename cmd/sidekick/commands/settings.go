// ABOUTME: Settings commands for viewing and persisting pipeline settings
// ABOUTME: Persisted settings override environment values on the next run
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harper/sidekick-pipeline/internal/config"
)

// NewSettingsCmd creates the settings command group
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View and persist pipeline settings",
		Long: `View and persist pipeline settings.

Settings start from built-in defaults, then SIDEKICK_SETTINGS (a YAML
file), then SIDEKICK_* environment variables. Settings saved with
'settings set' are stored alongside the state and win on later runs.`,
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsResetCmd())

	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				s := a.pipeline.Settings()
				if jsonOutput() {
					return printJSON(cmd.OutOrStdout(), s)
				}
				data, err := yaml.Marshal(s)
				if err != nil {
					return fmt.Errorf("failed to encode settings: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set <settings.yaml>",
		Short:   "Validate and persist settings from a YAML file",
		Example: `  sidekick settings set sidekick.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettingsFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.pipeline.UpdateSettings(cmd.Context(), s); err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
				}
				return nil
			})
		},
	}
}

func newSettingsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Persist the built-in defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.pipeline.UpdateSettings(cmd.Context(), config.Defaults()); err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), "Settings reset to defaults")
				}
				return nil
			})
		},
	}
}
