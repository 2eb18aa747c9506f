package encounter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateEncounter POSTs a triggering encounter for patientRef and returns
// the server-assigned id.
func (s *Service) CreateEncounter(ctx context.Context, patientRef string) (string, error) {
	enc := NewTrigger(patientRef)
	params := url.Values{"_format": []string{fhir.FormatJSON}}
	body, err := s.repo.Create(ctx, "Encounter", params, enc.ToFHIR())
	if err != nil {
		return "", fmt.Errorf("create encounter: %w", err)
	}
	res, err := fhir.DecodeResource(body)
	if err != nil {
		return "", fmt.Errorf("create encounter: %w", err)
	}
	if res.ID == "" {
		return "", fmt.Errorf("create encounter: response has no id")
	}
	enc.FHIRID = res.ID
	s.logger.Info().Str("encounter", fhir.RelativeReference("Encounter", enc.FHIRID)).Msg("created encounter")
	return enc.FHIRID, nil
}
