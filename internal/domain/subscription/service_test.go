package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

type fakeRepo struct {
	createBody []byte
	createErr  error
	deleteErr  error
	created    []any
	deleted    []string
}

func (f *fakeRepo) Create(_ context.Context, _ string, _ url.Values, resource any) ([]byte, error) {
	f.created = append(f.created, resource)
	return f.createBody, f.createErr
}

func (f *fakeRepo) Delete(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func validRequest() *Request {
	return &Request{
		TopicURL:        "http://x/Topic/t1",
		PatientRef:      "Patient/DevDays00120",
		Endpoint:        "http://localhost:32019/notification",
		HeartbeatPeriod: 60,
		Reason:          "test",
	}
}

func TestRequest_ToFHIR(t *testing.T) {
	sub := validRequest().ToFHIR()

	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m["resourceType"] != "Subscription" || m["status"] != "requested" {
		t.Errorf("unexpected header fields: %v", m)
	}
	if _, ok := m["id"]; ok {
		t.Error("id must be omitted on create")
	}
	topic := m["topic"].(map[string]interface{})
	if topic["reference"] != "http://x/Topic/t1" {
		t.Errorf("unexpected topic %v", topic)
	}
	filter := m["filterBy"].([]interface{})[0].(map[string]interface{})
	if filter["value"] != "Patient/DevDays00120" || filter["name"] != "patient" || filter["matchType"] != "=" {
		t.Errorf("unexpected filter %v", filter)
	}

	ch := m["channel"].(map[string]interface{})
	if ch["endpoint"] != "http://localhost:32019/notification" {
		t.Errorf("unexpected endpoint %v", ch["endpoint"])
	}
	if ch["heartbeatPeriod"] != float64(60) {
		t.Errorf("unexpected heartbeat %v", ch["heartbeatPeriod"])
	}
	if hdr, ok := ch["header"].([]interface{}); !ok || len(hdr) != 0 {
		t.Errorf("expected empty header list, got %v", ch["header"])
	}
	coding := ch["type"].(map[string]interface{})["coding"].([]interface{})[0].(map[string]interface{})
	if coding["code"] != "rest-hook" {
		t.Errorf("unexpected channel type %v", coding)
	}
	payload := ch["payload"].(map[string]interface{})
	if payload["content"] != "id-only" || payload["contentType"] != fhir.MIMEFHIRJSON {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestCreateSubscription_ReturnsServerID(t *testing.T) {
	repo := &fakeRepo{createBody: []byte(`{"resourceType":"Subscription","id":"sub-1","status":"requested"}`)}
	svc := NewService(repo, zerolog.Nop())

	id, err := svc.CreateSubscription(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sub-1" {
		t.Errorf("expected sub-1, got %s", id)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(repo.created))
	}
	if _, ok := repo.created[0].(*Subscription); !ok {
		t.Errorf("expected *Subscription body, got %T", repo.created[0])
	}
}

func TestCreateSubscription_Errors(t *testing.T) {
	tests := []struct {
		name string
		repo *fakeRepo
		req  func() *Request
	}{
		{"server rejects", &fakeRepo{createErr: errors.New("422")}, validRequest},
		{"no id in response", &fakeRepo{createBody: []byte(`{"resourceType":"Subscription"}`)}, validRequest},
		{"undecodable response", &fakeRepo{createBody: []byte(`<html>`)}, validRequest},
		{"missing topic", &fakeRepo{}, func() *Request { r := validRequest(); r.TopicURL = ""; return r }},
		{"missing patient", &fakeRepo{}, func() *Request { r := validRequest(); r.PatientRef = ""; return r }},
		{"bad endpoint scheme", &fakeRepo{}, func() *Request { r := validRequest(); r.Endpoint = "ftp://host/x"; return r }},
		{"endpoint without host", &fakeRepo{}, func() *Request { r := validRequest(); r.Endpoint = "http:///x"; return r }},
		{"negative heartbeat", &fakeRepo{}, func() *Request { r := validRequest(); r.HeartbeatPeriod = -1; return r }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.repo, zerolog.Nop())
			id, err := svc.CreateSubscription(context.Background(), tt.req())
			if err == nil {
				t.Fatalf("expected error, got id %q", id)
			}
			if id != "" {
				t.Errorf("expected empty id on error, got %q", id)
			}
		})
	}
}

func TestDeleteSubscription(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, zerolog.Nop())

	if err := svc.DeleteSubscription(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
	if len(repo.deleted) != 0 {
		t.Fatal("empty id must not reach the server")
	}

	if err := svc.DeleteSubscription(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "sub-1" {
		t.Errorf("unexpected deletes %v", repo.deleted)
	}

	repo.deleteErr = errors.New("gone")
	if err := svc.DeleteSubscription(context.Background(), "sub-2"); err == nil {
		t.Error("expected delete error to propagate")
	}
}

func TestService_AgainstFHIRServer(t *testing.T) {
	var posted map[string]interface{}
	var deletedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &posted)
			w.Header().Set("Content-Type", fhir.MIMEFHIRJSON)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"resourceType":"Subscription","id":"abc"}`)
		case http.MethodDelete:
			deletedPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	svc := NewService(fhir.NewClient(srv.URL, zerolog.Nop()), zerolog.Nop())
	id, err := svc.CreateSubscription(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if posted["resourceType"] != "Subscription" {
		t.Errorf("unexpected posted body %v", posted)
	}
	if err := svc.DeleteSubscription(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deletedPath != "/Subscription/abc" {
		t.Errorf("unexpected delete path %s", deletedPath)
	}
}
