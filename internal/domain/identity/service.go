package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

type Service struct {
	patients PatientRepository
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{patients: patients, logger: logger}
}

// EnsurePatient makes sure a patient with id exists on the server, creating
// the placeholder record when the lookup fails or comes back empty. created
// reports whether a write happened.
func (s *Service) EnsurePatient(ctx context.Context, id string) (created bool, err error) {
	body, err := s.patients.Read(ctx, "Patient", id)
	switch {
	case errors.Is(err, fhir.ErrNotFound):
		s.logger.Info().Str("patient", id).Msg("patient not found, creating")
		return true, s.CreatePatient(ctx, id)
	case err != nil:
		s.logger.Warn().Err(err).Str("patient", id).Msg("patient lookup failed, creating")
		return true, s.CreatePatient(ctx, id)
	}
	if !patientPresent(body, id) {
		s.logger.Info().Str("patient", id).Msg("patient not found, creating")
		return true, s.CreatePatient(ctx, id)
	}
	return false, nil
}

// CreatePatient PUTs the placeholder record at Patient/<id>.
func (s *Service) CreatePatient(ctx context.Context, id string) error {
	p := PlaceholderPatient(id)
	params := url.Values{"_format": []string{fhir.FormatJSON}}
	if _, err := s.patients.Update(ctx, "Patient", id, params, p.ToFHIR()); err != nil {
		s.logger.Error().Err(err).Str("patient", id).Msg("create patient failed")
		return fmt.Errorf("create patient %s: %w", id, err)
	}
	s.logger.Info().Str("patient", p.Reference()).Msg("created patient")
	return nil
}

// patientPresent accepts either a searchset-style Bundle with at least one
// entry or the Patient resource itself.
func patientPresent(body []byte, id string) bool {
	var probe struct {
		ResourceType string            `json:"resourceType"`
		ID           string            `json:"id"`
		Entry        []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	if probe.ResourceType == "Patient" {
		return probe.ID == id
	}
	return len(probe.Entry) > 0
}
