package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// HasResource reports whether the entry carries a resource payload.
func (e BundleEntry) HasResource() bool {
	trimmed := bytes.TrimSpace(e.Resource)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ParseBundle decodes a response body into a Bundle. A body that decodes but
// carries another resourceType is returned as-is; callers decide whether
// that matters.
func ParseBundle(body []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// Resources returns the raw resource of every entry that has one, in order.
// Entries without a resource are skipped.
func (b *Bundle) Resources() []json.RawMessage {
	if b == nil {
		return nil
	}
	out := make([]json.RawMessage, 0, len(b.Entry))
	for _, e := range b.Entry {
		if e.HasResource() {
			out = append(out, e.Resource)
		}
	}
	return out
}
