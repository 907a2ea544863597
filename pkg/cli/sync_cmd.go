package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile derived grants against live owning-group membership",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := application.Services.Scheduler.RunSync(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
