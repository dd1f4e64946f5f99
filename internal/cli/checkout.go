package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"gopkg.in/yaml.v3"
)

// newCheckoutCmd creates the checkout command
func newCheckoutCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "checkout <uri> <branch> [commit]",
		Short: "Check out a commit and print its metadata",
		Long: `Check out a commit of a repository and print the commit's metadata as YAML.

The commit defaults to HEAD, the current tip of the branch on the remote.
Without --dir the checkout goes into a new directory under the builds path.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			commit := checkout.Head
			if len(args) == 3 {
				commit = checkout.CommitRef(args[2])
			}
			repo := checkout.RepositoryRef{URI: args[0], Branch: args[1]}
			return handleCheckout(cmd.Context(), opts, cmd.OutOrStdout(), repo, commit, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to check out into")

	return cmd
}

// handleCheckout runs one checkout and writes its metadata to out
func handleCheckout(ctx context.Context, opts *rootOptions, out io.Writer, repo checkout.RepositoryRef, commit checkout.CommitRef, dir string) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	if dir == "" {
		dir = filepath.Join(cfg.Storage.BuildsPath, uuid.New().String())
	}

	strategy, err := checkout.NewStrategyFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	co, err := checkout.New(repo, commit, dir, checkout.Options{Strategy: strategy, Logger: logger})
	if err != nil {
		return err
	}

	if err := co.Run(ctx); err != nil {
		return fmt.Errorf("checkout failed: %w", err)
	}

	metadata, err := co.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to read commit metadata: %w", err)
	}

	fmt.Fprintf(out, "# checked out into %s\n", dir)
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(metadata)
}

// newHeadCmd creates the head command
func newHeadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "head <uri> <branch>",
		Short: "Print the commit a remote branch points at",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			strategy, err := checkout.NewStrategyFromConfig(cfg, logger)
			if err != nil {
				return err
			}

			// resolving the head never touches the directory
			co, err := checkout.New(checkout.RepositoryRef{URI: args[0], Branch: args[1]}, checkout.Head, ".", checkout.Options{
				Strategy: strategy,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			sha, err := co.Head(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to resolve head: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), sha)
			return nil
		},
	}
}
