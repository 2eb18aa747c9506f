package fhir

import (
	"encoding/json"
	"strings"
)

// ParseOutcome decodes an OperationOutcome from a response body. It returns
// nil when the body is not an OperationOutcome; servers are free to answer
// errors with plain text or an empty body.
func ParseOutcome(body []byte) *OperationOutcome {
	if len(body) == 0 {
		return nil
	}
	var oo OperationOutcome
	if err := json.Unmarshal(body, &oo); err != nil {
		return nil
	}
	if oo.ResourceType != "OperationOutcome" {
		return nil
	}
	return &oo
}

// Diagnostics joins the human readable text of every error or fatal issue,
// falling back to all issues when none is an error.
func (o *OperationOutcome) Diagnostics() string {
	if o == nil {
		return ""
	}
	var errs, all []string
	for _, issue := range o.Issue {
		text := issue.Diagnostics
		if text == "" && issue.Details != nil {
			text = issue.Details.Text
		}
		if text == "" {
			text = issue.Code
		}
		if text == "" {
			continue
		}
		all = append(all, text)
		if isErrorSeverity(issue.Severity) {
			errs = append(errs, text)
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "; ")
	}
	return strings.Join(all, "; ")
}
