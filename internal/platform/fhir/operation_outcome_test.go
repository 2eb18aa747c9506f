package fhir

import (
	"encoding/json"
	"testing"
)

func TestOutcomeBuilder(t *testing.T) {
	oo := NewOutcomeBuilder().
		AddIssue("warning", IssueTypeProcessing, "first").
		AddIssue(IssueSeverityError, IssueTypeTooCostly, "second").
		Build()

	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %s", oo.ResourceType)
	}
	if len(oo.Issue) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(oo.Issue))
	}
	if got := oo.Diagnostics(); got != "second" {
		t.Errorf("expected error diagnostics only, got %q", got)
	}

	raw, err := json.Marshal(oo)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if parsed := ParseOutcome(raw); parsed == nil || len(parsed.Issue) != 2 {
		t.Errorf("expected outcome to parse back, got %+v", parsed)
	}
}

func TestOperationOutcome_DiagnosticsSeverityFilter(t *testing.T) {
	info := NewOutcomeBuilder().AddIssue("information", IssueTypeProcessing, "ok").Build()
	if got := info.Diagnostics(); got != "ok" {
		t.Errorf("expected fallback to non-error issues, got %q", got)
	}
	fatal := NewOutcomeBuilder().
		AddIssue("information", IssueTypeProcessing, "ok").
		AddIssue(IssueSeverityFatal, IssueTypeException, "boom").
		Build()
	if got := fatal.Diagnostics(); got != "boom" {
		t.Errorf("expected fatal diagnostics only, got %q", got)
	}
	var none *OperationOutcome
	if got := none.Diagnostics(); got != "" {
		t.Errorf("nil outcome has no diagnostics, got %q", got)
	}
}
