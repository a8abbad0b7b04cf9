package fhirclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

func TestReadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/PlanDefinition/proto-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "application/fhir+json" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(`{"resourceType":"PlanDefinition","id":"proto-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	raw, err := c.Read(context.Background(), "PlanDefinition", "proto-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var r fhir.Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != "proto-1" {
		t.Fatalf("id = %q", r.ID)
	}
}

func TestErrorPreservesStatusAndBody(t *testing.T) {
	const body = `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Create(context.Background(), "Observation", map[string]interface{}{"resourceType": "Observation"})
	if err == nil {
		t.Fatal("expected error")
	}
	re, ok := err.(*RepositoryError)
	if !ok {
		t.Fatalf("expected RepositoryError, got %T", err)
	}
	if re.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", re.Status)
	}
	if re.Body != body {
		t.Fatalf("body not preserved verbatim: %q", re.Body)
	}
}

func TestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Read(context.Background(), "Device", "missing")
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound = false for %v", err)
	}
}

func TestHeaderSourceApplied(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(`{"resourceType":"Bundle","type":"searchset"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithHeaderSource(staticHeaders{"x-api-key": "secret-key"}))
	if _, err := c.Search(context.Background(), "Observation", url.Values{"_count": {"10"}}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotKey != "secret-key" {
		t.Fatalf("x-api-key = %q", gotKey)
	}
}

func TestSubmitBundlePostsToRoot(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"resourceType":"Bundle","type":"transaction-response"}`))
	}))
	defer srv.Close()

	b := fhir.NewTransaction()
	if _, err := b.AddPost("PlanDefinition", map[string]interface{}{"resourceType": "PlanDefinition"}); err != nil {
		t.Fatal(err)
	}

	c := New(srv.URL)
	if _, err := c.SubmitBundle(context.Background(), b); err != nil {
		t.Fatalf("SubmitBundle: %v", err)
	}
	if gotPath != "/" || gotMethod != http.MethodPost {
		t.Fatalf("bundle went to %s %s, want POST /", gotMethod, gotPath)
	}
}

func TestNoRetryOnFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Read(context.Background(), "Observation", "obs-1"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("client retried: %d calls", calls)
	}
}

type staticHeaders map[string]string

func (s staticHeaders) Headers(context.Context) (http.Header, error) {
	h := http.Header{}
	for k, v := range s {
		h.Set(k, v)
	}
	return h, nil
}
