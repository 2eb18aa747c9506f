package topic

import (
	"context"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

// Repository is the subset of the FHIR client the topic service needs.
type Repository interface {
	Search(ctx context.Context, resourceType string) (*fhir.Bundle, error)
}
