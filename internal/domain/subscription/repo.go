package subscription

import (
	"context"
	"net/url"
)

// Repository is the subset of the FHIR client subscription handling needs.
type Repository interface {
	Create(ctx context.Context, resourceType string, params url.Values, resource any) ([]byte, error)
	Delete(ctx context.Context, resourceType, id string) error
}
