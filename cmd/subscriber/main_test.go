package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "basic", "topics", "listen"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected %s command, got %v (%v)", name, cmd, err)
		}
	}
	for _, flag := range []string{"port", "public-url", "fhir-server", "patient-id", "generate-patient-id", "threshold", "topic-resource"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := newLogger(false, tt.level).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestTopicsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/SubscriptionTopic" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		io.WriteString(w, `{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"SubscriptionTopic","id":"t1","title":"Encounter start","description":"New encounters","url":"http://x/Topic/t1"}}]}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"topics", "--fhir-server", srv.URL, "--topic-resource", "SubscriptionTopic", "--env", "production", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "SubscriptionTopic/t1 - Encounter start: New encounters") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestTopicsCommand_NoTopicsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"topics", "--fhir-server", srv.URL, "--env", "production", "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when the server offers no topics")
	}
}

func TestBadConfigFails(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"topics", "--fhir-server", "ftp://example.org", "--env", "production", "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected config validation error")
	}
}
