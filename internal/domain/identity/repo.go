package identity

import (
	"context"
	"net/url"
)

// PatientRepository is the subset of the FHIR client patient handling needs.
type PatientRepository interface {
	Read(ctx context.Context, resourceType, id string) ([]byte, error)
	Update(ctx context.Context, resourceType, id string, params url.Values, resource any) ([]byte, error)
}
