package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/stwalsh4118/integrity/internal/command"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/logging"
)

// Strategy performs the git-touching operations of a checkout.
// Every Checkout operation goes through exactly one Strategy chosen at
// construction time.
type Strategy interface {
	// Clone materializes repo at sha inside dir
	Clone(ctx context.Context, repo RepositoryRef, dir, sha string) error
	// ShowMetadata prints commit sha of the clone in dir using a git pretty format
	ShowMetadata(ctx context.Context, dir, format, sha string) (string, error)
	// ResolveHead returns the remote tip of repo.Branch without cloning
	ResolveHead(ctx context.Context, repo RepositoryRef) (string, error)
}

// NewStrategy returns the Strategy for mode. helperScript is only used by ModeHelper.
func NewStrategy(mode Mode, runner command.Runner, helperScript string) (Strategy, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	switch mode {
	case ModeDirect:
		return &DirectStrategy{runner: runner}, nil
	case ModeHelper:
		if helperScript == "" {
			return nil, fmt.Errorf("helper script cannot be empty in %s mode", mode)
		}
		return &HelperStrategy{runner: runner, script: helperScript}, nil
	default:
		return nil, fmt.Errorf("unknown checkout mode %s", mode)
	}
}

// NewStrategyFromConfig picks the mode from the configured deploy key and
// runs commands through a fresh runner
func NewStrategyFromConfig(cfg *config.Config, logger logging.Logger) (Strategy, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	runner, err := command.NewRunner(logger)
	if err != nil {
		return nil, err
	}

	return NewStrategy(ModeFor(cfg.HelperMode()), runner, cfg.Deploy.HelperScript)
}

// DirectStrategy drives the git CLI
type DirectStrategy struct {
	runner command.Runner
}

// Clone clones the branch, then pins the work tree to sha and brings submodules up to date
func (s *DirectStrategy) Clone(ctx context.Context, repo RepositoryRef, dir, sha string) error {
	if _, err := s.runner.RunChecked(ctx, command.New("git", "clone", "--branch", repo.Branch, repo.URI, dir)); err != nil {
		return fmt.Errorf("failed to clone %s: %w", repo.URI, err)
	}

	inDir := s.runner.In(dir)
	steps := []command.Command{
		command.New("git", "fetch", "origin"),
		command.New("git", "checkout", "origin/"+repo.Branch),
		command.New("git", "reset", "--hard", sha),
		// init and update stay separate for old git versions
		command.New("git", "submodule", "init"),
		command.New("git", "submodule", "update"),
	}
	for _, step := range steps {
		if _, err := inDir.RunChecked(ctx, step); err != nil {
			return fmt.Errorf("checkout step failed: %w", err)
		}
	}

	return nil
}

// ShowMetadata runs git show inside the clone
func (s *DirectStrategy) ShowMetadata(ctx context.Context, dir, format, sha string) (string, error) {
	result, err := s.runner.In(dir).RunChecked(ctx, command.New("git", "show", "-s", "--pretty=format:"+format, sha))
	if err != nil {
		return "", fmt.Errorf("failed to show commit %s: %w", sha, err)
	}
	return result.Output(), nil
}

// ResolveHead asks the remote for the branch tip; the sha is the first field of ls-remote output
func (s *DirectStrategy) ResolveHead(ctx context.Context, repo RepositoryRef) (string, error) {
	result, err := s.runner.RunChecked(ctx, command.New("git", "ls-remote", "--heads", repo.URI, repo.Branch))
	if err != nil {
		return "", fmt.Errorf("failed to list remote heads of %s: %w", repo.URI, err)
	}

	fields := strings.Fields(result.Output())
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no head for branch %q on %s", ErrMalformedOutput, repo.Branch, repo.URI)
	}
	return fields[0], nil
}

// HelperStrategy delegates to an external script that owns the deploy key.
// The script is called as `<script> run|show|head <args...>` and prints
// output shaped like the equivalent git commands.
type HelperStrategy struct {
	runner command.Runner
	script string
}

// Clone runs `<script> run <uri> <dir> <branch> <sha>`
func (s *HelperStrategy) Clone(ctx context.Context, repo RepositoryRef, dir, sha string) error {
	if _, err := s.runner.RunChecked(ctx, command.New(s.script, "run", repo.URI, dir, repo.Branch, sha)); err != nil {
		return fmt.Errorf("helper checkout of %s failed: %w", repo.URI, err)
	}
	return nil
}

// ShowMetadata runs `<script> show <dir> <format> <sha>`
func (s *HelperStrategy) ShowMetadata(ctx context.Context, dir, format, sha string) (string, error) {
	result, err := s.runner.RunChecked(ctx, command.New(s.script, "show", dir, format, sha))
	if err != nil {
		return "", fmt.Errorf("helper show of %s failed: %w", sha, err)
	}
	return result.Output(), nil
}

// ResolveHead runs `<script> head <uri> <branch>`. The sha sits right
// before the trailing ref name, as in an ls-remote line.
func (s *HelperStrategy) ResolveHead(ctx context.Context, repo RepositoryRef) (string, error) {
	result, err := s.runner.RunChecked(ctx, command.New(s.script, "head", repo.URI, repo.Branch))
	if err != nil {
		return "", fmt.Errorf("helper head lookup of %s failed: %w", repo.URI, err)
	}

	fields := strings.Fields(result.Output())
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: helper head output %q", ErrMalformedOutput, result.Output())
	}
	return fields[len(fields)-2], nil
}
