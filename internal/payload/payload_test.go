package payload

import (
	"context"
	"errors"
	"testing"

	"github.com/stwalsh4118/integrity/internal/checkout"
)

const pushJSON = `{
  "after": "b",
  "ref": "refs/heads/main",
  "repository": {"private": false, "url": "https://example.com/org/repo.git"},
  "commits": [
    {"id": "a", "author": {"name": "Ann", "email": "ann@example.com"}, "message": "first", "timestamp": "2024-03-05T14:07:09+01:00"},
    {"id": "b", "author": {"name": "Bob", "email": "bob@example.com"}, "message": "second", "timestamp": "2024-03-05T14:08:09+01:00"}
  ]
}`

func mustParse(t *testing.T, data string) *Payload {
	t.Helper()
	p, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

type recordingPolicy struct {
	payload  *Payload
	headOnly bool
	calls    int
}

func (r *recordingPolicy) SelectAndBuild(_ context.Context, p *Payload, headOnly bool) error {
	r.payload = p
	r.headOnly = headOnly
	r.calls++
	return nil
}

func TestParse_MalformedFailsImmediately(t *testing.T) {
	for _, body := range []string{"", "{", "not json", `{"commits": "nope"}`} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("Parse(%q): expected ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestCommits_MappedInOrder(t *testing.T) {
	p := mustParse(t, pushJSON)

	commits := p.Commits()
	want := []Commit{
		{Identifier: "a", Author: "Ann <ann@example.com>", Message: "first", CommittedAt: "2024-03-05T14:07:09+01:00"},
		{Identifier: "b", Author: "Bob <bob@example.com>", Message: "second", CommittedAt: "2024-03-05T14:08:09+01:00"},
	}
	if len(commits) != len(want) {
		t.Fatalf("expected %d commits, got %d", len(want), len(commits))
	}
	for i := range want {
		if commits[i] != want[i] {
			t.Errorf("commit %d: expected %+v, got %+v", i, want[i], commits[i])
		}
	}
}

func TestCommits_Memoized(t *testing.T) {
	p := mustParse(t, pushJSON)

	first := p.Commits()
	second := p.Commits()
	if &first[0] != &second[0] {
		t.Error("expected the same backing list on repeated calls")
	}
}

func TestCommits_EmptyPush(t *testing.T) {
	p := mustParse(t, `{"after": "0000000000000000000000000000000000000000", "ref": "refs/heads/gone"}`)

	if n := len(p.Commits()); n != 0 {
		t.Errorf("expected no commits, got %d", n)
	}
	if _, ok := p.Head(); ok {
		t.Error("expected no head for a push without commits")
	}
}

func TestHead(t *testing.T) {
	p := mustParse(t, pushJSON)

	head, ok := p.Head()
	if !ok {
		t.Fatal("expected a head commit")
	}
	if head.Identifier != "b" {
		t.Errorf("expected head b, got %s", head.Identifier)
	}

	missing := mustParse(t, `{"after": "z", "commits": [{"id": "a"}, {"id": "b"}]}`)
	if _, ok := missing.Head(); ok {
		t.Error("expected no head when after matches nothing")
	}
}

func TestURI(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "explicit uri wins",
			body: `{"uri": "/srv/git/repo.git", "repository": {"private": true, "url": "https://github.com/org/repo.git"}}`,
			want: "/srv/git/repo.git",
		},
		{
			name: "public uses git scheme",
			body: `{"repository": {"private": false, "url": "https://example.com/org/repo.git"}}`,
			want: "git://example.com/org/repo.git",
		},
		{
			name: "private uses ssh",
			body: `{"repository": {"private": true, "url": "https://github.com/org/repo.git"}}`,
			want: "git@github.com:org/repo.git",
		},
		{
			name: "private keeps host but drops port",
			body: `{"repository": {"private": true, "url": "https://git.example.com:8443/team/app"}}`,
			want: "git@git.example.com:team/app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustParse(t, tt.body).URI()
			if err != nil {
				t.Fatalf("URI failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("URI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURI_MissingRepository(t *testing.T) {
	if _, err := mustParse(t, `{"ref": "refs/heads/main"}`).URI(); err == nil {
		t.Fatal("expected error without uri or repository")
	}
}

func TestBranch(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{ref: "refs/heads/main", want: "main"},
		{ref: "refs/heads/feature/login", want: "feature/login"},
		{ref: "refs/tags/v1.0", want: "refs/tags/v1.0"},
		{ref: "refs/heads/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			p := mustParse(t, `{"ref": "`+tt.ref+`"}`)
			if got := p.Branch(); got != tt.want {
				t.Errorf("Branch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepository(t *testing.T) {
	ref, err := mustParse(t, pushJSON).Repository()
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	want := checkout.RepositoryRef{URI: "git://example.com/org/repo.git", Branch: "main"}
	if ref != want {
		t.Errorf("expected %+v, got %+v", want, ref)
	}
}

func TestNormalizeAuthor(t *testing.T) {
	got := NormalizeAuthor(Author{Name: "Jane Doe", Email: "jane@example.com"})
	if got != "Jane Doe <jane@example.com>" {
		t.Errorf("unexpected author %q", got)
	}
}

func TestBuild_PassesHeadOnlyFlag(t *testing.T) {
	tests := []struct {
		buildAll     bool
		wantHeadOnly bool
	}{
		{buildAll: false, wantHeadOnly: true},
		{buildAll: true, wantHeadOnly: false},
	}

	for _, tt := range tests {
		p := mustParse(t, pushJSON)
		policy := &recordingPolicy{}

		if err := p.Build(context.Background(), policy, tt.buildAll); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if policy.calls != 1 || policy.payload != p {
			t.Errorf("expected policy to be called once with the payload")
		}
		if policy.headOnly != tt.wantHeadOnly {
			t.Errorf("buildAll=%v: expected headOnly=%v, got %v", tt.buildAll, tt.wantHeadOnly, policy.headOnly)
		}
	}

	if err := mustParse(t, pushJSON).Build(context.Background(), nil, false); err == nil {
		t.Error("expected error for nil policy")
	}
}
