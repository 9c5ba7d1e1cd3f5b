package images

import (
	"context"
	"fmt"
	"strings"
)

// Stager is the file-staging collaborator. Uploads land under the staged
// prefix before a proposal exists; approval promotes the object to a durable
// reference, rejection or cancellation discards it.
type Stager interface {
	Promote(ctx context.Context, stagedPath string) (durableRef string, err error)
	Discard(ctx context.Context, stagedPath string) error
}

// PrefixStager derives durable references by swapping the staged prefix for
// the durable one. The actual byte move is the staging collaborator's job;
// this implementation only computes and validates the reference handed to it.
type PrefixStager struct {
	stagedPrefix  string
	durablePrefix string
}

// NewPrefixStager builds a stager for the configured prefixes.
func NewPrefixStager(stagedPrefix, durablePrefix string) *PrefixStager {
	return &PrefixStager{stagedPrefix: stagedPrefix, durablePrefix: durablePrefix}
}

func (s *PrefixStager) Promote(_ context.Context, stagedPath string) (string, error) {
	trimmed := strings.TrimSpace(stagedPath)
	if trimmed == "" {
		return "", fmt.Errorf("staged path is required")
	}
	if !strings.HasPrefix(trimmed, s.stagedPrefix) {
		return "", fmt.Errorf("staged path %q is outside the staging prefix", trimmed)
	}
	return s.durablePrefix + strings.TrimPrefix(trimmed, s.stagedPrefix), nil
}

func (s *PrefixStager) Discard(_ context.Context, stagedPath string) error {
	trimmed := strings.TrimSpace(stagedPath)
	if trimmed == "" {
		return fmt.Errorf("staged path is required")
	}
	if !strings.HasPrefix(trimmed, s.stagedPrefix) {
		return fmt.Errorf("staged path %q is outside the staging prefix", trimmed)
	}
	return nil
}
