package encounter

import (
	"context"
	"net/url"
)

// Repository is the subset of the FHIR client encounter creation needs.
type Repository interface {
	Create(ctx context.Context, resourceType string, params url.Values, resource any) ([]byte, error)
}
