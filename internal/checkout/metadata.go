package checkout

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// metadataFormat makes git print a YAML document; the subject goes in a
	// folded block so quotes and colons in it survive.
	metadataFormat = "---%n" +
		"identifier: %H%n" +
		"author: %an <%ae>%n" +
		"message: >-%n  %s%n" +
		"committed_at: %ci%n"

	bodyFormat = "%b"

	// MaxMessageLength is the width of the stored subject column
	MaxMessageLength = 255

	ellipsis = "..."

	// gitDateLayout matches git's %ci
	gitDateLayout = "2006-01-02 15:04:05 -0700"
)

var (
	endsMidWord  = regexp.MustCompile(`\w\w$`)
	trailingWord = regexp.MustCompile(`\w+$`)
)

// showRecord is the document printed by metadataFormat
type showRecord struct {
	Identifier  string    `yaml:"identifier"`
	Author      string    `yaml:"author"`
	Message     string    `yaml:"message"`
	CommittedAt yaml.Node `yaml:"committed_at"`
}

// Metadata extracts metadata for the resolved sha. Each call runs git again.
func (c *Checkout) Metadata(ctx context.Context) (*Metadata, error) {
	sha, err := c.SHA1(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("extracting commit metadata", "sha", sha)

	// Subject, author, identifier and date as a YAML document
	output, err := c.strategy.ShowMetadata(ctx, c.dir, metadataFormat, sha)
	if err != nil {
		return nil, err
	}

	record, err := parseShowOutput(output)
	if err != nil {
		c.logger.Error("failed to parse commit metadata", "sha", sha, "error", err)
		return nil, err
	}

	// Body separately, it is free-form text
	body, err := c.strategy.ShowMetadata(ctx, c.dir, bodyFormat, sha)
	if err != nil {
		return nil, err
	}

	committedAt, err := parseCommittedAt(record.CommittedAt)
	if err != nil {
		c.logger.Error("failed to parse commit timestamp", "sha", sha, "error", err)
		return nil, err
	}

	metadata := &Metadata{
		Identifier:  record.Identifier,
		Author:      record.Author,
		Message:     TruncateMessage(record.Message),
		FullMessage: record.Message + "\n\n" + body,
		CommittedAt: committedAt,
	}

	if metadata.Message != record.Message {
		c.logger.Info("truncated long commit subject", "sha", sha, "length", len([]rune(record.Message)))
	}

	c.logger.Debug("extracted commit metadata", "sha", sha, "author", metadata.Author)
	return metadata, nil
}

// parseShowOutput decodes the YAML document printed by metadataFormat
func parseShowOutput(output string) (*showRecord, error) {
	var record showRecord
	if err := yaml.Unmarshal([]byte(output), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if record.Identifier == "" {
		return nil, fmt.Errorf("%w: no identifier in show output %q", ErrMalformedOutput, output)
	}
	return &record, nil
}

// parseCommittedAt keeps a YAML timestamp as-is and otherwise parses git's textual date
func parseCommittedAt(node yaml.Node) (time.Time, error) {
	if node.Kind != yaml.ScalarNode {
		return time.Time{}, fmt.Errorf("%w: committed_at missing or not a scalar", ErrMalformedOutput)
	}

	if node.ShortTag() == "!!timestamp" {
		var t time.Time
		if err := node.Decode(&t); err != nil {
			return time.Time{}, fmt.Errorf("failed to decode committed_at: %w", err)
		}
		return t, nil
	}

	for _, layout := range []string{gitDateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, node.Value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse committed_at %q", node.Value)
}

// TruncateMessage fits a commit subject into MaxMessageLength characters.
// A cut landing inside a word drops that word; otherwise one more character
// goes. An ellipsis is appended in both cases.
func TruncateMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= MaxMessageLength {
		return message
	}

	truncated := string(runes[:MaxMessageLength-2])
	if endsMidWord.MatchString(truncated) {
		truncated = trailingWord.ReplaceAllString(truncated, "")
	} else {
		truncated = string(runes[:MaxMessageLength-3])
	}

	return truncated + ellipsis
}
