package topic

import (
	"context"

	"github.com/rs/zerolog"
)

// Service lists the topics a FHIR server offers.
type Service struct {
	repo         Repository
	resourceType string
	logger       zerolog.Logger
}

// NewService creates a topic service. resourceType is "Topic" or
// "SubscriptionTopic" depending on the server's backport version.
func NewService(repo Repository, resourceType string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, resourceType: resourceType, logger: logger}
}

// List returns every topic the server reports. A failed request or a body
// without entries yields an empty list; the cause is logged. Entries
// without a resource, or whose resource does not decode, are skipped.
func (s *Service) List(ctx context.Context) []Topic {
	bundle, err := s.repo.Search(ctx, s.resourceType)
	if err != nil {
		s.logger.Error().Err(err).Str("resource", s.resourceType).Msg("list topics failed")
		return nil
	}
	if bundle.Entry == nil {
		s.logger.Warn().Str("resource", s.resourceType).Msg("topic bundle has no entry list")
		return nil
	}

	topics := make([]Topic, 0, len(bundle.Entry))
	for _, raw := range bundle.Resources() {
		t, err := FromFHIR(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable topic entry")
			continue
		}
		topics = append(topics, *t)
	}
	return topics
}
