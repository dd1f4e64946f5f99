package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stwalsh4118/integrity/internal/daemon"
)

const (
	serviceStartTimeout = 5 * time.Second
	serviceStopTimeout  = 15 * time.Second
)

// binaryPath is the integrity binary built once by TestMain
var binaryPath string

// testEnv is an isolated HOME for one test
type testEnv struct {
	home  string
	extra []string
}

// setupTestEnv creates a temporary HOME for the CLI. The service is
// stopped again when the test ends.
func setupTestEnv(t *testing.T, extra ...string) *testEnv {
	t.Helper()

	env := &testEnv{home: t.TempDir(), extra: extra}
	t.Cleanup(func() {
		env.ensureServiceStopped(t)
	})
	return env
}

// buildBinary compiles cmd/integrity into dir
func buildBinary(dir string) (string, error) {
	exePath := filepath.Join(dir, "integrity")

	cmd := exec.Command("go", "build", "-o", exePath, "./cmd/integrity")
	cmd.Dir = filepath.Join("..", "..")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to build integrity binary: %v\n%s", err, out)
	}
	return exePath, nil
}

func (e *testEnv) environ() []string {
	env := []string{
		"HOME=" + e.home,
		"PATH=" + os.Getenv("PATH"),
		"INTEGRITY_LOGGING_CONSOLE=false",
		"INTEGRITY_SERVER_ADDR=127.0.0.1:0",
	}
	return append(env, e.extra...)
}

// run executes the CLI and returns stdout, stderr and the error
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = e.environ()
	cmd.Dir = e.home
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// mustRun executes the CLI and fails the test on a nonzero exit
func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("integrity %s failed: %v\nstdout: %s\nstderr: %s", strings.Join(args, " "), err, stdout, stderr)
	}
	return stdout
}

func (e *testEnv) pidPath() string {
	return filepath.Join(e.home, ".integrity", "integrity.pid")
}

// waitForService waits until the PID file names a live process
func (e *testEnv) waitForService(timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pid, err := daemon.ReadPID(e.pidPath()); err == nil {
			if running, err := daemon.IsProcessRunning(pid); err == nil && running {
				return pid, nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, fmt.Errorf("service did not start within %v", timeout)
}

// ensureServiceStopped kills a service left behind by a failed test
func (e *testEnv) ensureServiceStopped(t *testing.T) {
	pid, err := daemon.ReadPID(e.pidPath())
	if err != nil {
		return
	}

	_, _, _ = e.run(t, "", "stop")
	if err := daemon.WaitForProcessExit(pid, serviceStopTimeout); err != nil {
		if process, err := os.FindProcess(pid); err == nil {
			_ = process.Kill()
		}
	}
	_ = daemon.RemovePIDFile(e.pidPath())
}

// createSourceRepo makes a git repository with one commit on master and
// returns its path and head sha
func createSourceRepo(t *testing.T, subject string) (string, string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := filepath.Join(t.TempDir(), "source")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create source repo dir: %v", err)
	}

	git := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Jane Doe", "GIT_AUTHOR_EMAIL=jane@example.com",
			"GIT_COMMITTER_NAME=Jane Doe", "GIT_COMMITTER_EMAIL=jane@example.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
		}
		return strings.TrimSpace(string(out))
	}

	git("init", "--quiet")
	git("checkout", "--quiet", "-b", "master")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	git("add", "README")
	git("commit", "--quiet", "-m", subject, "-m", "Body of the commit")

	return dir, git("rev-parse", "HEAD")
}
