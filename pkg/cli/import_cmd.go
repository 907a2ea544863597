package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"delegated-groups/internal/importer"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import an effective-owners CSV export",
		Long: "Import an effective-owners CSV export (columns: app, group_name, " +
			"user_name, email_address, source_type, via_group_name). GROUP_OWNER " +
			"rows also backfill the owning-group rules so later sync runs keep " +
			"them reconciled.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, logger, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			im := importer.New(
				application.Services.Identity,
				application.Services.Registry,
				application.OwnerRepo,
				logger.With("component", "importer"),
			)
			summary, err := im.Run(cmd.Context(), f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
