// Package payload interprets push notifications: which commits were pushed,
// which one is the head, and where to fetch them from.
package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stwalsh4118/integrity/internal/checkout"
)

const branchRefPrefix = "refs/heads/"

// ErrMalformedPayload is returned when the push body is not valid JSON
var ErrMalformedPayload = errors.New("malformed payload")

// Policy decides which commits of a payload get built and builds them
type Policy interface {
	SelectAndBuild(ctx context.Context, p *Payload, headOnly bool) error
}

// Author is the author record of a pushed commit
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit is one pushed commit. CommittedAt is kept exactly as received.
type Commit struct {
	Identifier  string `json:"identifier"`
	Author      string `json:"author"`
	Message     string `json:"message"`
	CommittedAt string `json:"committed_at"`
}

// rawCommit is a commit entry as it appears on the wire
type rawCommit struct {
	ID        string `json:"id"`
	Author    Author `json:"author"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// pushEvent is the decoded push notification
type pushEvent struct {
	URI        string      `json:"uri"`
	Ref        string      `json:"ref"`
	After      string      `json:"after"`
	Commits    []rawCommit `json:"commits"`
	Repository *struct {
		Private bool   `json:"private"`
		URL     string `json:"url"`
	} `json:"repository"`
}

// Payload wraps a parsed push notification
type Payload struct {
	event   pushEvent
	commits []Commit
}

// Parse decodes a push notification. Invalid JSON fails here, not on first use.
func Parse(data []byte) (*Payload, error) {
	var event pushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &Payload{event: event}, nil
}

// Build hands the payload to policy. Only the head commit is built unless buildAll is set.
func (p *Payload) Build(ctx context.Context, policy Policy, buildAll bool) error {
	if policy == nil {
		return fmt.Errorf("build policy cannot be nil")
	}
	return policy.SelectAndBuild(ctx, p, !buildAll)
}

// Commits returns the pushed commits in the order received.
// The slice is built once and shared by later calls.
func (p *Payload) Commits() []Commit {
	if p.commits == nil {
		p.commits = make([]Commit, 0, len(p.event.Commits))
		for _, c := range p.event.Commits {
			p.commits = append(p.commits, Commit{
				Identifier:  c.ID,
				Author:      NormalizeAuthor(c.Author),
				Message:     c.Message,
				CommittedAt: c.Timestamp,
			})
		}
	}
	return p.commits
}

// Head returns the commit named by the payload's "after" sha.
// A push without it (a branch deletion, say) reports false.
func (p *Payload) Head() (Commit, bool) {
	for _, c := range p.Commits() {
		if c.Identifier == p.event.After {
			return c, true
		}
	}
	return Commit{}, false
}

// URI returns the address to clone from. An explicit uri wins; otherwise
// private repositories go over SSH and public ones over git://.
func (p *Payload) URI() (string, error) {
	if p.event.URI != "" {
		return p.event.URI, nil
	}

	repository := p.event.Repository
	if repository == nil || repository.URL == "" {
		return "", fmt.Errorf("%w: no repository url", ErrMalformedPayload)
	}

	u, err := url.Parse(repository.URL)
	if err != nil {
		return "", fmt.Errorf("invalid repository url %q: %w", repository.URL, err)
	}

	if repository.Private {
		return "git@" + u.Hostname() + ":" + strings.TrimPrefix(u.Path, "/"), nil
	}

	u.Scheme = "git"
	return u.String(), nil
}

// Branch returns the branch name from the pushed ref. Only refs/heads/ refs
// are meaningful; anything else comes back as the whole ref.
func (p *Payload) Branch() string {
	parts := strings.Split(p.event.Ref, branchRefPrefix)
	return parts[len(parts)-1]
}

// After returns the sha the branch points at after the push
func (p *Payload) After() string {
	return p.event.After
}

// Repository returns the URI and branch to check pushed commits out from
func (p *Payload) Repository() (checkout.RepositoryRef, error) {
	uri, err := p.URI()
	if err != nil {
		return checkout.RepositoryRef{}, err
	}
	return checkout.RepositoryRef{URI: uri, Branch: p.Branch()}, nil
}

// NormalizeAuthor renders an author as "Name <email>"
func NormalizeAuthor(author Author) string {
	return fmt.Sprintf("%s <%s>", author.Name, author.Email)
}
