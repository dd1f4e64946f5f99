package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/buildable"
	"github.com/stwalsh4118/integrity/internal/db"
	"github.com/stwalsh4118/integrity/internal/payload"
)

const defaultListLimit = 20

// newBuildCmd creates the build command
func newBuildCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "build <payload-file|->",
		Short: "Build the commits of a push payload",
		Long: `Build the commits described by a push payload read from a file, or from
standard input when the argument is "-".

Only the head commit is built unless build_all is configured or --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			p, err := payload.Parse(data)
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			buildAll := cfg.BuildAll || all

			database, err := db.Open(cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			policy, err := buildable.NewPolicyFromConfig(cfg, database, logger)
			if err != nil {
				return err
			}

			selected := policy.Select(p, !buildAll)
			if err := p.Build(cmd.Context(), policy, buildAll); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Built %d commit(s)\n", len(selected))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "build every pushed commit, not only the head")

	return cmd
}

func readPayload(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}
	return data, nil
}

// newBuildsCmd creates the builds command
func newBuildsCmd(opts *rootOptions) *cobra.Command {
	var repo string
	var limit int

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List recorded builds",
		Args:  cobra.NoArgs,
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

			var builds []*build.Build
			if repo != "" {
				builds, err = storage.ListBuildsByRepository(repo, limit)
			} else {
				builds, err = storage.ListRecentBuilds(limit)
			}
			if err != nil {
				return err
			}

			return printBuilds(cmd.OutOrStdout(), builds)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "only show builds of this repository URI")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "maximum number of builds to show (0 for all)")

	return cmd
}

func printBuilds(out io.Writer, builds []*build.Build) error {
	if len(builds) == 0 {
		fmt.Fprintln(out, "No builds found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tREPOSITORY\tBRANCH\tCOMMIT\tMESSAGE\tCREATED")
	for _, b := range builds {
		commit, message := b.CommitRef, b.Error
		if b.Metadata != nil {
			commit, message = b.Metadata.Identifier, b.Metadata.Message
		}
		if len(commit) > 7 {
			commit = commit[:7]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Status, b.RepositoryURI, b.Branch, commit, message,
			b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
