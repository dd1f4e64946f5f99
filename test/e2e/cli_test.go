package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stwalsh4118/integrity/internal/daemon"
	"gopkg.in/yaml.v3"
)

func TestCLICommandsExist(t *testing.T) {
	env := setupTestEnv(t)

	help := env.mustRun(t, "--help")
	for _, name := range []string{"checkout", "head", "build", "builds", "inspect", "serve", "start", "stop", "status", "config"} {
		if !strings.Contains(help, name) {
			t.Errorf("help output does not list %q", name)
		}
	}
}

func TestConfigShowRedactsDeployKey(t *testing.T) {
	env := setupTestEnv(t, "DEPLOY_PRIVATE_KEY=super-secret-key")

	out := env.mustRun(t, "config", "--show")
	if strings.Contains(out, "super-secret-key") {
		t.Fatal("config --show printed the deploy key")
	}

	var shown map[string]any
	if err := yaml.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("config --show is not YAML: %v\n%s", err, out)
	}
	for _, key := range []string{"deploy", "storage", "build", "server", "spool", "logging"} {
		if _, ok := shown[key]; !ok {
			t.Errorf("config --show is missing %q", key)
		}
	}
}

func TestConfigSetBuildsPathPersists(t *testing.T) {
	env := setupTestEnv(t)
	buildsPath := filepath.Join(env.home, "elsewhere", "builds")

	env.mustRun(t, "config", "--set-builds-path", buildsPath)

	data, err := os.ReadFile(filepath.Join(env.home, ".integrity", "config.yaml"))
	if err != nil {
		t.Fatalf("config file was not written: %v", err)
	}
	if !strings.Contains(string(data), "~/elsewhere/builds") {
		t.Errorf("config file does not hold the new builds path:\n%s", data)
	}

	if _, _, err := env.run(t, "", "config", "--show", "--set-helper-script", "x"); err == nil {
		t.Error("expected error when combining config flags")
	}
}

func TestHeadAndCheckout(t *testing.T) {
	env := setupTestEnv(t)
	source, sha := createSourceRepo(t, "Initial import")

	head := strings.TrimSpace(env.mustRun(t, "head", source, "master"))
	if head != sha {
		t.Errorf("head = %q, want %q", head, sha)
	}

	dir := filepath.Join(env.home, "work")
	out := env.mustRun(t, "checkout", source, "master", "--dir", dir)
	if !strings.Contains(out, "identifier: "+sha) {
		t.Errorf("checkout output lacks identifier:\n%s", out)
	}
	if !strings.Contains(out, "Jane Doe <jane@example.com>") {
		t.Errorf("checkout output lacks author:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "README")); err != nil {
		t.Errorf("working tree not checked out: %v", err)
	}

	if _, _, err := env.run(t, "", "checkout", source, "master", "not-a-sha"); err == nil {
		t.Error("expected error for an invalid commit ref")
	}
}

func TestBuildFromPayload(t *testing.T) {
	env := setupTestEnv(t)
	source, sha := createSourceRepo(t, "Add README")

	push := `{"uri": "` + source + `", "ref": "refs/heads/master", "after": "` + sha + `",
		"commits": [{"id": "` + sha + `", "author": {"name": "Jane Doe", "email": "jane@example.com"}, "message": "Add README"}]}`

	stdout, stderr, err := env.run(t, push, "build", "-")
	if err != nil {
		t.Fatalf("build failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	if !strings.Contains(stdout, "Built 1 commit(s)") {
		t.Errorf("unexpected build output %q", stdout)
	}

	list := env.mustRun(t, "builds", "--repo", source)
	if !strings.Contains(list, "checked_out") || !strings.Contains(list, sha[:7]) {
		t.Errorf("builds output does not show the checkout:\n%s", list)
	}

	lines := strings.Split(strings.TrimSpace(list), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected a header and one build, got:\n%s", list)
	}
	buildID := strings.Fields(lines[1])[0]

	report := env.mustRun(t, "inspect", buildID)
	if !strings.Contains(report, "matches: true") {
		t.Errorf("inspect does not confirm the checkout:\n%s", report)
	}

	if _, _, err := env.run(t, "{broken", "build", "-"); err == nil {
		t.Error("expected error for a malformed payload")
	}
}

func TestServiceLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	if out := env.mustRun(t, "status"); !strings.Contains(out, "stopped") {
		t.Errorf("status before start = %q", out)
	}

	env.mustRun(t, "start")
	pid, err := env.waitForService(serviceStartTimeout)
	if err != nil {
		t.Fatal(err)
	}

	if out := env.mustRun(t, "status"); !strings.Contains(out, "running") {
		t.Errorf("status after start = %q", out)
	}
	if _, _, err := env.run(t, "", "start"); err == nil {
		t.Error("expected second start to fail")
	}

	env.mustRun(t, "stop")
	if running, _ := daemon.IsProcessRunning(pid); running {
		t.Error("service still running after stop")
	}
	if exists, _ := daemon.PIDFileExists(env.pidPath()); exists {
		t.Error("PID file still exists after stop")
	}
}
