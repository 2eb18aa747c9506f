package topic

import (
	"encoding/json"
	"fmt"
)

// Topic is a server-defined category of events a Subscription can filter
// on. Servers expose it as Topic or SubscriptionTopic; both decode here.
type Topic struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	Name         string `json:"name,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
}

// FromFHIR decodes a topic resource taken from a Bundle entry.
func FromFHIR(raw json.RawMessage) (*Topic, error) {
	var t Topic
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode topic: %w", err)
	}
	return &t, nil
}

// Reference returns the relative reference of the topic resource.
func (t *Topic) Reference() string {
	return t.ResourceType + "/" + t.ID
}
