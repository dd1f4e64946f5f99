package buildable

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/db"
	"github.com/stwalsh4118/integrity/internal/logging"
	"github.com/stwalsh4118/integrity/internal/payload"
)

const (
	shaA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	shaC = "cccccccccccccccccccccccccccccccccccccccc"
)

const pushJSON = `{
  "ref": "refs/heads/master",
  "after": "` + shaC + `",
  "repository": {"private": false, "url": "http://github.com/foca/integrity"},
  "commits": [
    {"id": "` + shaA + `", "author": {"name": "A", "email": "a@example.com"}, "message": "one"},
    {"id": "` + shaB + `", "author": {"name": "B", "email": "b@example.com"}, "message": "two"},
    {"id": "` + shaC + `", "author": {"name": "C", "email": "c@example.com"}, "message": "three"}
  ]
}`

// recordingBuilder remembers the commits it was asked to build
type recordingBuilder struct {
	mu      sync.Mutex
	repos   []checkout.RepositoryRef
	commits []string
	fail    map[string]bool
	delay   time.Duration
	running atomic.Int32
	maxSeen atomic.Int32
}

func (r *recordingBuilder) Build(_ context.Context, repo checkout.RepositoryRef, commit checkout.CommitRef) (*build.Build, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.repos = append(r.repos, repo)
	r.commits = append(r.commits, string(commit))
	r.mu.Unlock()

	if r.fail[string(commit)] {
		return nil, errors.New("checkout exploded")
	}
	return &build.Build{CommitRef: string(commit), Status: build.StatusCheckedOut}, nil
}

func mustParse(t *testing.T, body string) *payload.Payload {
	t.Helper()
	p, err := payload.Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

func newTestPolicy(t *testing.T, builder Builder, maxParallel int) *Policy {
	t.Helper()
	policy, err := NewPolicy(builder, maxParallel, logging.NewNoopLogger())
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return policy
}

func TestNewPolicy_Validation(t *testing.T) {
	if _, err := NewPolicy(nil, 1, logging.NewNoopLogger()); err == nil {
		t.Error("expected error for nil builder")
	}
	if _, err := NewPolicy(&recordingBuilder{}, 1, nil); err == nil {
		t.Error("expected error for nil logger")
	}
	policy := newTestPolicy(t, &recordingBuilder{}, 0)
	if policy.maxParallel != 1 {
		t.Errorf("expected non-positive parallelism to become 1, got %d", policy.maxParallel)
	}
}

func TestSelectAndBuild_HeadOnly(t *testing.T) {
	builder := &recordingBuilder{}
	policy := newTestPolicy(t, builder, 1)

	if err := policy.SelectAndBuild(context.Background(), mustParse(t, pushJSON), true); err != nil {
		t.Fatalf("SelectAndBuild failed: %v", err)
	}

	if len(builder.commits) != 1 || builder.commits[0] != shaC {
		t.Errorf("expected only head commit, got %v", builder.commits)
	}
	want := checkout.RepositoryRef{URI: "git://github.com/foca/integrity", Branch: "master"}
	if builder.repos[0] != want {
		t.Errorf("repo = %+v, want %+v", builder.repos[0], want)
	}
}

func TestSelectAndBuild_HeadMissing(t *testing.T) {
	builder := &recordingBuilder{}
	policy := newTestPolicy(t, builder, 1)

	body := strings.Replace(pushJSON, `"after": "`+shaC+`"`, `"after": "0000000000000000000000000000000000000000"`, 1)
	if err := policy.SelectAndBuild(context.Background(), mustParse(t, body), true); err != nil {
		t.Fatalf("SelectAndBuild failed: %v", err)
	}
	if len(builder.commits) != 0 {
		t.Errorf("expected nothing built, got %v", builder.commits)
	}
}

func TestSelectAndBuild_AllSequentialKeepsOrder(t *testing.T) {
	builder := &recordingBuilder{}
	policy := newTestPolicy(t, builder, 1)

	if err := mustParse(t, pushJSON).Build(context.Background(), policy, true); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{shaA, shaB, shaC}
	if strings.Join(builder.commits, ",") != strings.Join(want, ",") {
		t.Errorf("commits = %v, want %v", builder.commits, want)
	}
}

func TestSelectAndBuild_Parallel(t *testing.T) {
	builder := &recordingBuilder{delay: 50 * time.Millisecond}
	policy := newTestPolicy(t, builder, 3)

	if err := policy.SelectAndBuild(context.Background(), mustParse(t, pushJSON), false); err != nil {
		t.Fatalf("SelectAndBuild failed: %v", err)
	}

	got := append([]string(nil), builder.commits...)
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join([]string{shaA, shaB, shaC}, ",") {
		t.Errorf("unexpected commits %v", got)
	}
	if builder.maxSeen.Load() > 3 {
		t.Errorf("ran %d builds at once, limit is 3", builder.maxSeen.Load())
	}
}

func TestSelectAndBuild_ErrorsAreJoined(t *testing.T) {
	builder := &recordingBuilder{fail: map[string]bool{shaA: true, shaC: true}}
	policy := newTestPolicy(t, builder, 1)

	err := policy.SelectAndBuild(context.Background(), mustParse(t, pushJSON), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(builder.commits) != 3 {
		t.Errorf("a failure must not stop later builds, built %v", builder.commits)
	}
	if !strings.Contains(err.Error(), shaA) || !strings.Contains(err.Error(), shaC) {
		t.Errorf("expected both failures in error, got %v", err)
	}
}

func TestSelectAndBuild_MissingRepository(t *testing.T) {
	policy := newTestPolicy(t, &recordingBuilder{}, 1)

	body := `{"ref": "refs/heads/master", "after": "` + shaA + `", "commits": [{"id": "` + shaA + `"}]}`
	if err := policy.SelectAndBuild(context.Background(), mustParse(t, body), true); !errors.Is(err, payload.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestNewPolicyFromConfig(t *testing.T) {
	logger := logging.NewNoopLogger()
	dir := t.TempDir()

	cfg := &config.Config{
		Deploy:  config.DeployConfig{HelperScript: "git_ssh"},
		Storage: config.StorageConfig{BuildsPath: filepath.Join(dir, "builds"), DatabasePath: filepath.Join(dir, "integrity.db")},
		Build:   config.BuildConfig{MaxParallel: 4},
	}

	if _, err := NewPolicyFromConfig(nil, nil, logger); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewPolicyFromConfig(cfg, nil, logger); err == nil {
		t.Error("expected error for nil database")
	}

	database, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	defer database.Close()

	policy, err := NewPolicyFromConfig(cfg, database, logger)
	if err != nil {
		t.Fatalf("NewPolicyFromConfig failed: %v", err)
	}
	if policy.maxParallel != 4 {
		t.Errorf("maxParallel = %d, want 4", policy.maxParallel)
	}
}
