package subscription

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

// Service registers and removes subscriptions on the FHIR server.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new subscription service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validateEndpointURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("endpoint URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint URL %q has no host", endpoint)
	}
	return nil
}

func validateRequest(req *Request) error {
	if req.TopicURL == "" {
		return fmt.Errorf("topic url is required")
	}
	if req.PatientRef == "" {
		return fmt.Errorf("patient reference is required")
	}
	if err := validateEndpointURL(req.Endpoint); err != nil {
		return fmt.Errorf("invalid channel endpoint: %w", err)
	}
	if req.HeartbeatPeriod < 0 {
		return fmt.Errorf("heartbeat period must not be negative")
	}
	return nil
}

// CreateSubscription POSTs the subscription and returns the id the server
// assigned to it.
func (s *Service) CreateSubscription(ctx context.Context, req *Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	body, err := s.repo.Create(ctx, "Subscription", nil, req.ToFHIR())
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	res, err := fhir.DecodeResource(body)
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	if res.ID == "" {
		return "", fmt.Errorf("create subscription: response has no id")
	}
	s.logger.Info().
		Str("subscription", fhir.RelativeReference("Subscription", res.ID)).
		Str("topic", req.TopicURL).
		Str("endpoint", req.Endpoint).
		Msg("created subscription")
	return res.ID, nil
}

// DeleteSubscription removes Subscription/<id>.
func (s *Service) DeleteSubscription(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete subscription: id is required")
	}
	if err := s.repo.Delete(ctx, "Subscription", id); err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	s.logger.Info().Str("subscription", fhir.RelativeReference("Subscription", id)).Msg("deleted subscription")
	return nil
}
