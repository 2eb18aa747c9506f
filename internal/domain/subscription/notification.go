package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ehr/subscriber/pkg/fhirmodels"
)

// ErrMalformedNotification is returned when a notification body cannot be
// read at all. Bodies that parse but carry no recognised fields are not an
// error; they yield an Event of type TypeUnknown.
var ErrMalformedNotification = errors.New("malformed notification")

// NotificationType classifies an inbound notification.
type NotificationType string

const (
	TypeHandshake         NotificationType = fhirmodels.NotificationTypeHandshake
	TypeHeartbeat         NotificationType = fhirmodels.NotificationTypeHeartbeat
	TypeEventNotification NotificationType = fhirmodels.NotificationTypeEventNotification
	TypeUnknown           NotificationType = "unknown"
)

// Schema identifies the payload layout an Event was read from.
type Schema int

const (
	// SchemaNone means no recognised layout was found.
	SchemaNone Schema = iota
	// SchemaCurrent is a subscription-notification Bundle whose first entry
	// is a SubscriptionStatus.
	SchemaCurrent
	// SchemaLegacy carries the status in Bundle.meta.extension.
	SchemaLegacy
)

func (s Schema) String() string {
	switch s {
	case SchemaCurrent:
		return "current"
	case SchemaLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// Count is an event counter that may be absent from a payload.
type Count struct {
	Value int64
	Valid bool
}

func knownCount(v int64) Count {
	return Count{Value: v, Valid: true}
}

func (c Count) String() string {
	if !c.Valid {
		return "NaN"
	}
	return strconv.FormatInt(c.Value, 10)
}

// Event is the metadata extracted from one notification.
type Event struct {
	Schema           Schema
	Type             NotificationType
	EventCount       Count
	BundleEventCount Count
	Status           string
	TopicURL         string
	SubscriptionURL  string
}

// IsHandshake reports whether the event is a handshake. An event count of
// zero is the only signal, whichever layout the payload used.
func (e Event) IsHandshake() bool {
	return e.EventCount.Valid && e.EventCount.Value == 0
}

// Interpret extracts event metadata from a notification body. The current
// layout is tried first; the legacy meta.extension layout is only consulted
// when the body is not a current-layout notification.
func Interpret(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Event{Type: TypeUnknown}, nil
	}

	payload, err := decodeJSON(trimmed)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	root, ok := payload.(map[string]interface{})
	if !ok {
		return Event{Type: TypeUnknown}, nil
	}

	ev, ok, err := interpretCurrent(root)
	if err != nil || ok {
		return ev, err
	}
	ev, ok, err = interpretLegacy(root)
	if err != nil || ok {
		return ev, err
	}
	return Event{Type: TypeUnknown}, nil
}

func decodeJSON(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return payload, nil
}

func interpretCurrent(root map[string]interface{}) (Event, bool, error) {
	if stringField(root, "type") != fhirmodels.BundleTypeSubscriptionNotification {
		return Event{}, false, nil
	}
	entries, ok := root["entry"].([]interface{})
	if !ok || len(entries) == 0 {
		return Event{}, false, nil
	}
	first, _ := entries[0].(map[string]interface{})
	status, ok := first["resource"].(map[string]interface{})
	if !ok {
		return Event{}, false, fmt.Errorf("%w: first entry has no resource", ErrMalformedNotification)
	}

	ev := Event{
		Schema:          SchemaCurrent,
		Type:            TypeUnknown,
		Status:          stringField(status, "status"),
		TopicURL:        referenceField(status, "topic"),
		SubscriptionURL: referenceField(status, "subscription"),
	}
	switch NotificationType(stringField(status, "notificationType")) {
	case TypeHandshake:
		ev.Type = TypeHandshake
		ev.EventCount = knownCount(0)
		ev.BundleEventCount = knownCount(0)
	case TypeHeartbeat:
		ev.Type = TypeHeartbeat
		ev.EventCount = countOf(status["eventsSinceSubscriptionStart"])
		ev.BundleEventCount = knownCount(0)
	case TypeEventNotification:
		ev.Type = TypeEventNotification
		ev.EventCount = countOf(status["eventsSinceSubscriptionStart"])
		ev.BundleEventCount = countOf(status["eventsInNotification"])
	}
	return ev, true, nil
}

// Legacy extension URL suffixes. Servers used both spellings.
var (
	suffixEventCount       = []string{"subscriptionEventCount", "subscription-event-count"}
	suffixBundleEventCount = []string{"bundleEventCount", "bundle-event-count"}
	suffixStatus           = []string{"subscriptionStatus", "subscription-status"}
	suffixTopicURL         = []string{"subscriptionTopicUrl", "subscription-topic-url"}
	suffixSubscriptionURL  = []string{"subscriptionUrl", "subscription-url"}
)

func interpretLegacy(root map[string]interface{}) (Event, bool, error) {
	meta, ok := root["meta"].(map[string]interface{})
	if !ok {
		return Event{}, false, nil
	}
	raw, present := meta["extension"]
	if !present || raw == nil {
		return Event{}, false, nil
	}
	extensions, ok := raw.([]interface{})
	if !ok {
		return Event{}, false, fmt.Errorf("%w: meta.extension is not a list", ErrMalformedNotification)
	}

	ev := Event{Schema: SchemaLegacy}
	for i, el := range extensions {
		ext, ok := el.(map[string]interface{})
		if !ok {
			return Event{}, false, fmt.Errorf("%w: meta.extension[%d] is not an object", ErrMalformedNotification, i)
		}
		url, ok := ext["url"].(string)
		if !ok {
			return Event{}, false, fmt.Errorf("%w: meta.extension[%d] has no url", ErrMalformedNotification, i)
		}
		switch {
		case hasAnySuffix(url, suffixEventCount):
			ev.EventCount = countOf(ext["valueDecimal"])
		case hasAnySuffix(url, suffixBundleEventCount):
			ev.BundleEventCount = countOf(ext["valueUnsignedInt"])
		case hasAnySuffix(url, suffixStatus):
			ev.Status = stringField(ext, "valueString")
		case hasAnySuffix(url, suffixTopicURL):
			ev.TopicURL = stringField(ext, "valueUrl")
		case hasAnySuffix(url, suffixSubscriptionURL):
			ev.SubscriptionURL = stringField(ext, "valueUrl")
		}
	}
	ev.Type = legacyType(ev)
	return ev, true, nil
}

// legacyType derives the notification type the legacy layout does not carry.
func legacyType(ev Event) NotificationType {
	switch {
	case ev.IsHandshake():
		return TypeHandshake
	case !ev.BundleEventCount.Valid:
		return TypeUnknown
	case ev.BundleEventCount.Value == 0:
		return TypeHeartbeat
	default:
		return TypeEventNotification
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// referenceField reads a Reference's reference element, also accepting a
// bare canonical string in its place.
func referenceField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		return stringField(v, "reference")
	default:
		return ""
	}
}

// countOf converts a JSON number or numeric string to a Count. Servers
// encode int64 counters as strings in some FHIR versions.
func countOf(v interface{}) Count {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return knownCount(i)
		}
		parsed, err := n.Float64()
		if err != nil {
			return Count{}
		}
		f = parsed
	case float64:
		f = n
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return knownCount(i)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Count{}
		}
		f = parsed
	default:
		return Count{}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Count{}
	}
	return knownCount(int64(f))
}
