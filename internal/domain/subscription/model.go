package subscription

import (
	"github.com/ehr/subscriber/internal/platform/fhir"
	"github.com/ehr/subscriber/pkg/fhirmodels"
)

// Request describes the subscription this program registers: one topic,
// filtered to one patient, delivered by rest-hook to Endpoint.
type Request struct {
	TopicURL        string
	PatientRef      string
	Endpoint        string
	HeartbeatPeriod int
	Reason          string
}

// Subscription is the wire shape of the topic-based Subscription resource
// posted to the server.
type Subscription struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Status       string         `json:"status"`
	Reason       string         `json:"reason,omitempty"`
	Topic        fhir.Reference `json:"topic"`
	FilterBy     []Filter       `json:"filterBy,omitempty"`
	Channel      Channel        `json:"channel"`
	Meta         *fhir.Meta     `json:"meta,omitempty"`
}

type Filter struct {
	MatchType string `json:"matchType"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

type Channel struct {
	Type            fhir.CodeableConcept `json:"type"`
	Endpoint        string               `json:"endpoint"`
	Header          []string             `json:"header"`
	HeartbeatPeriod int                  `json:"heartbeatPeriod,omitempty"`
	Payload         Payload              `json:"payload"`
}

type Payload struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// ToFHIR renders the request as a requested rest-hook Subscription with an
// id-only payload.
func (r *Request) ToFHIR() *Subscription {
	return &Subscription{
		ResourceType: "Subscription",
		Status:       fhirmodels.SubscriptionStatusRequested,
		Reason:       r.Reason,
		Topic:        fhir.Reference{Reference: r.TopicURL},
		FilterBy: []Filter{{
			MatchType: "=",
			Name:      "patient",
			Value:     r.PatientRef,
		}},
		Channel: Channel{
			Type: fhir.CodeableConcept{
				Coding: []fhir.Coding{{
					System:  fhirmodels.ChannelTypeSystem,
					Code:    fhirmodels.ChannelTypeRestHook,
					Display: "Rest Hook",
				}},
				Text: "REST Hook",
			},
			Endpoint:        r.Endpoint,
			Header:          []string{},
			HeartbeatPeriod: r.HeartbeatPeriod,
			Payload: Payload{
				Content:     fhirmodels.PayloadContentIDOnly,
				ContentType: fhir.MIMEFHIRJSON,
			},
		},
	}
}
