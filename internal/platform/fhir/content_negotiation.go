package fhir

import (
	"mime"
	"strings"
)

// Media types used on the wire. FHIR servers expect the fhir+json flavour;
// plain application/json is accepted from notification senders too.
const (
	MIMEFHIRJSON        = "application/fhir+json"
	MIMEFHIRJSONCharset = "application/fhir+json;charset=utf-8"
	MIMEJSON            = "application/json"
)

// PreferRepresentation asks the server to echo the stored resource.
const PreferRepresentation = "return=representation"

// FormatJSON is the _format query value used on writes.
const FormatJSON = "json"

// IsJSONContentType reports whether a Content-Type header names a JSON body
// this program can read. Parameters such as charset are ignored.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	switch strings.ToLower(mt) {
	case MIMEJSON, MIMEFHIRJSON:
		return true
	default:
		return false
	}
}
