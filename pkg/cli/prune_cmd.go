package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"delegated-groups/internal/domain"
)

func newPruneCmd() *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete registered groups that no longer exist upstream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			var summary any
			if system == "" {
				summary, err = application.Services.Scheduler.RunPrune(cmd.Context())
			} else {
				var sys domain.System
				sys, err = domain.ParseSystem(system)
				if err != nil {
					return err
				}
				var names []string
				names, err = application.Services.Pruner.LiveGroupNames(cmd.Context(), sys)
				if err != nil {
					return err
				}
				summary, err = application.Services.Pruner.PruneSystem(cmd.Context(), sys, names)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "prune only this system (jira or confluence)")
	return cmd
}
