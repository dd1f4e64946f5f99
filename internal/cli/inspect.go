package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/db"
	"github.com/stwalsh4118/integrity/internal/inspect"
	"gopkg.in/yaml.v3"
)

// newInspectCmd creates the inspect command
func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <build-id>",
		Short: "Compare a build's working tree with its recorded commit",
		Long: `Read the working tree of a recorded build and print the commit it is at,
the files that commit touched, and whether it matches the identifier
recorded when the build was checked out. Exits non-zero on a mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			database, err := db.Open(cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			storage, err := build.NewStorage(database, logger)
			if err != nil {
				return err
			}

			b, err := storage.GetBuild(args[0])
			if err != nil {
				return err
			}

			inspector, err := inspect.NewInspector(logger)
			if err != nil {
				return err
			}

			report, err := inspector.InspectBuild(b)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(report); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}

			if !report.Matches {
				return fmt.Errorf("build %s is at %s, expected %s", b.ID, report.Metadata.Identifier, report.Expected)
			}
			return nil
		},
	}
}
