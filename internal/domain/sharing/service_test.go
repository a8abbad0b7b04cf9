package sharing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/domain/batch"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/organization"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/protocol"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/testdef"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhirclient"
)

type fakeRepo struct {
	resources map[string]json.RawMessage
	updateErr map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{resources: map[string]json.RawMessage{}, updateErr: map[string]error{}}
}

func (f *fakeRepo) put(resourceType, id string, resource interface{}) {
	raw, _ := json.Marshal(resource)
	f.resources[resourceType+"/"+id] = raw
}

func (f *fakeRepo) Read(_ context.Context, resourceType, id string) (json.RawMessage, error) {
	raw, ok := f.resources[resourceType+"/"+id]
	if !ok {
		return nil, &fhirclient.RepositoryError{Status: http.StatusNotFound, Body: "not found"}
	}
	return raw, nil
}

func (f *fakeRepo) Search(_ context.Context, resourceType string, _ url.Values) (*fhir.Bundle, error) {
	b := &fhir.Bundle{ResourceType: "Bundle", Type: "searchset"}
	for key, raw := range f.resources {
		if strings.HasPrefix(key, resourceType+"/") {
			b.Entry = append(b.Entry, fhir.BundleEntry{FullURL: key, Resource: raw})
		}
	}
	return b, nil
}

func (f *fakeRepo) Create(_ context.Context, resourceType string, resource interface{}) (json.RawMessage, error) {
	raw, _ := json.Marshal(resource)
	return raw, nil
}

func (f *fakeRepo) Update(_ context.Context, resourceType, id string, resource interface{}) (json.RawMessage, error) {
	if err := f.updateErr[resourceType+"/"+id]; err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resource)
	f.resources[resourceType+"/"+id] = raw
	return raw, nil
}

func (f *fakeRepo) Delete(_ context.Context, resourceType, id string) error {
	delete(f.resources, resourceType+"/"+id)
	return nil
}

type fakeOrgs map[string]*organization.Organization

func (f fakeOrgs) Get(_ context.Context, id string) (*organization.Organization, error) {
	o, ok := f[id]
	if !ok {
		return nil, &fhirclient.RepositoryError{Status: http.StatusNotFound, Body: "not found"}
	}
	return o, nil
}

type submitCall struct {
	endpoint string
	apiKey   string
	bundle   *fhir.Bundle
}

type recorder struct {
	calls []submitCall
	fail  map[string]error
}

func (r *recorder) submit(_ context.Context, endpoint, apiKey string, bundle *fhir.Bundle) error {
	r.calls = append(r.calls, submitCall{endpoint: endpoint, apiKey: apiKey, bundle: bundle})
	return r.fail[endpoint]
}

func seedProtocol(repo *fakeRepo) {
	repo.put("PlanDefinition", "pd-1", &protocol.PlanDefinition{
		ResourceType: "PlanDefinition",
		ID:           "pd-1",
		Title:        "25C/60RH long-term study",
		Status:       "active",
		Action: []protocol.Action{
			{
				ID:    "tp-0",
				Title: "T0",
				Action: []protocol.Action{
					{ID: "a-1", Definition: "ActivityDefinition/ad-1"},
					{ID: "a-2", Definition: "ActivityDefinition/ad-2"},
				},
			},
			{
				ID:    "tp-3m",
				Title: "3 months",
				Action: []protocol.Action{
					{ID: "a-3", Definition: "ActivityDefinition/ad-2"},
				},
			},
		},
	})
}

func seedTests(repo *fakeRepo) {
	// One test carries the extension encoding, the other only the meta
	// tag; both must resolve.
	repo.put("ActivityDefinition", "ad-1", &testdef.ActivityDefinition{
		ResourceType: "ActivityDefinition",
		ID:           "ad-1",
		Title:        "Assay",
		Extension: []fhir.Extension{
			{URL: fhir.ExtTestProtocol, ValueString: "PlanDefinition/pd-1"},
		},
	})
	repo.put("ActivityDefinition", "ad-2", &testdef.ActivityDefinition{
		ResourceType: "ActivityDefinition",
		ID:           "ad-2",
		Title:        "Dissolution",
		Meta:         fhir.AddTag(nil, fhir.TagSystem, "protocol:pd-1"),
	})
	repo.put("ActivityDefinition", "ad-other", &testdef.ActivityDefinition{
		ResourceType: "ActivityDefinition",
		ID:           "ad-other",
		Title:        "Unrelated",
		Extension: []fhir.Extension{
			{URL: fhir.ExtTestProtocol, ValueString: "PlanDefinition/pd-9"},
		},
	})
}

func seedBatch(repo *fakeRepo) {
	repo.put("Device", "dev-1", &batch.Device{
		ResourceType: "Device",
		ID:           "dev-1",
		LotNumber:    "L-100",
		DeviceName:   []batch.DeviceName{{Name: "B-100", Type: "model-name"}},
		Extension: []fhir.Extension{
			{URL: fhir.ExtBatchProtocol, ValueReference: &fhir.Reference{Reference: "PlanDefinition/pd-1"}},
		},
	})
}

func newTestService(repo *fakeRepo, orgs fakeOrgs, rec *recorder) *Service {
	fixed := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return NewService(repo, orgs, rec.submit, "Acme Pharma", "acme", zerolog.Nop(), WithClock(fixed))
}

func TestShareBuildsBundlePerOrganization(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)
	seedBatch(repo)

	orgs := fakeOrgs{
		"org-a": {ID: "org-a", Name: "Alpine Labs", Endpoint: "http://alpine.example/fhir", APIKey: "alpine-key"},
		"org-b": {ID: "org-b", Name: "Borealis CRO", Endpoint: "http://borealis.example/fhir"},
	}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	resp, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a", "org-b"},
		ShareMode:       "all",
		ShareBatches:    true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.calls) != 2 {
		t.Fatalf("submit called %d times, want 2", len(rec.calls))
	}
	if rec.calls[0].endpoint != "http://alpine.example/fhir" || rec.calls[0].apiKey != "alpine-key" {
		t.Fatalf("first call = %q/%q", rec.calls[0].endpoint, rec.calls[0].apiKey)
	}

	bundle := rec.calls[0].bundle
	if bundle.Type != "transaction" || len(bundle.Entry) != 5 {
		t.Fatalf("bundle type %q with %d entries, want transaction with 5", bundle.Type, len(bundle.Entry))
	}

	// The sponsor Organization goes first, as a conditional create keyed on
	// the sponsor identifier.
	orgEntry := bundle.Entry[0]
	if orgEntry.Request.Method != "POST" || orgEntry.Request.URL != "Organization" {
		t.Fatalf("organization request = %+v", orgEntry.Request)
	}
	if want := "identifier=" + fhir.IdentSponsor + "|acme"; orgEntry.Request.IfNoneExist != want {
		t.Fatalf("organization ifNoneExist = %q, want %q", orgEntry.Request.IfNoneExist, want)
	}
	var org organization.FHIROrganization
	json.Unmarshal(orgEntry.Resource, &org)
	if org.Name != "Acme Pharma" {
		t.Fatalf("sponsor organization name = %q", org.Name)
	}
	if !fhir.HasTag(org.Meta, fhir.TagSystem, fhir.TagSponsorOrganization) {
		t.Fatal("sponsor organization not tagged sponsor-organization")
	}
	if got := fhir.ExtensionString(org.Extension, fhir.ExtOrganizationType); got != "sponsor" {
		t.Fatalf("organization type = %q", got)
	}

	protoEntry := bundle.Entry[1]
	if protoEntry.Request.Method != "POST" || protoEntry.Request.URL != "PlanDefinition" {
		t.Fatalf("protocol request = %+v", protoEntry.Request)
	}
	if !strings.HasPrefix(protoEntry.FullURL, "urn:uuid:") {
		t.Fatalf("protocol fullUrl = %q", protoEntry.FullURL)
	}

	var pd protocol.PlanDefinition
	json.Unmarshal(protoEntry.Resource, &pd)
	if pd.ID != "" {
		t.Fatalf("protocol copy kept source id %q", pd.ID)
	}
	if !fhir.HasTag(pd.Meta, fhir.TagSystem, fhir.TagSharedProtocol) {
		t.Fatal("protocol copy not tagged shared-protocol")
	}
	if got := fhir.ExtensionString(pd.Extension, fhir.ExtSponsor); got != "Acme Pharma" {
		t.Fatalf("sponsor extension = %q", got)
	}
	if got := fhir.ExtensionString(pd.Extension, fhir.ExtSponsorID); got != "acme" {
		t.Fatalf("sponsor id extension = %q", got)
	}
	if ref := fhir.ExtensionReference(pd.Extension, fhir.ExtSponsorOrganization); ref != orgEntry.FullURL {
		t.Fatalf("sponsor organization ref = %q, want %q", ref, orgEntry.FullURL)
	}
	if got := fhir.ExtensionString(pd.Extension, fhir.ExtSharedDate); got != "2026-03-14T10:00:00Z" {
		t.Fatalf("sharedDate = %q", got)
	}

	testEntries, batchEntries := 0, 0
	for _, entry := range bundle.Entry[2:] {
		switch entry.Request.URL {
		case "ActivityDefinition":
			testEntries++
			var ad testdef.ActivityDefinition
			json.Unmarshal(entry.Resource, &ad)
			if !fhir.HasTag(ad.Meta, fhir.TagSystem, fhir.TagSharedTest) {
				t.Fatal("test copy not tagged shared-test")
			}
			if ref := fhir.ExtensionReference(ad.Extension, fhir.ExtTestProtocol); ref != protoEntry.FullURL {
				t.Fatalf("test protocol ref = %q, want %q", ref, protoEntry.FullURL)
			}
		case "Device":
			batchEntries++
			var d batch.Device
			json.Unmarshal(entry.Resource, &d)
			if !fhir.HasTag(d.Meta, fhir.TagSystem, fhir.TagSharedBatch) {
				t.Fatal("batch copy not tagged shared-batch")
			}
			if ref := fhir.ExtensionReference(d.Extension, fhir.ExtBatchProtocol); ref != protoEntry.FullURL {
				t.Fatalf("batch protocol ref = %q, want %q", ref, protoEntry.FullURL)
			}
		}
	}
	if testEntries != 2 || batchEntries != 1 {
		t.Fatalf("bundle carries %d tests and %d batches, want 2 and 1", testEntries, batchEntries)
	}

	for _, res := range resp.Results {
		if !res.Success {
			t.Fatalf("org %s failed: %s", res.OrganizationID, res.Message)
		}
		if res.Message != "protocol + 2 test definitions + 1 batches" {
			t.Fatalf("message = %q", res.Message)
		}
	}
	if resp.BatchesShared != 1 {
		t.Fatalf("batches_shared = %d", resp.BatchesShared)
	}

	// Share intent lands on the source protocol.
	var source protocol.PlanDefinition
	json.Unmarshal(repo.resources["PlanDefinition/pd-1"], &source)
	if got := fhir.ExtensionString(source.Extension, fhir.ExtPlanSharedOrganizations); got != "org-a,org-b" {
		t.Fatalf("shared organizations = %q", got)
	}
	if !fhir.HasTag(source.Meta, fhir.TagSystem, fhir.TagSharedProtocol) {
		t.Fatal("source protocol not tagged shared-protocol")
	}

	// The source batch is tagged shared-batch, best effort.
	var dev batch.Device
	json.Unmarshal(repo.resources["Device/dev-1"], &dev)
	if !fhir.HasTag(dev.Meta, fhir.TagSystem, fhir.TagSharedBatch) {
		t.Fatal("source batch not tagged shared-batch")
	}
}

func TestShareMergesOrganizationsOnRepeat(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{
		"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"},
		"org-b": {ID: "org-b", Name: "Borealis", Endpoint: "http://borealis.example/fhir"},
	}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	ctx := context.Background()
	if _, err := svc.Share(ctx, "pd-1", &ShareRequest{OrganizationIDs: []string{"org-a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Share(ctx, "pd-1", &ShareRequest{OrganizationIDs: []string{"org-b", "org-a"}}); err != nil {
		t.Fatal(err)
	}

	var source protocol.PlanDefinition
	json.Unmarshal(repo.resources["PlanDefinition/pd-1"], &source)
	if got := fhir.ExtensionString(source.Extension, fhir.ExtPlanSharedOrganizations); got != "org-a,org-b" {
		t.Fatalf("shared organizations = %q, want merged without duplicates", got)
	}
}

func TestShareSpecificPrunesTree(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	resp, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       "specific",
		SelectedTests:   []string{"ad-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Message != "protocol + 1 test definitions" {
		t.Fatalf("message = %q", resp.Results[0].Message)
	}

	bundle := rec.calls[0].bundle
	if len(bundle.Entry) != 3 {
		t.Fatalf("bundle has %d entries, want organization + protocol + 1 test", len(bundle.Entry))
	}

	var pd protocol.PlanDefinition
	json.Unmarshal(bundle.Entry[1].Resource, &pd)
	// The 3-month timepoint only drew ad-2; it must be gone entirely.
	if len(pd.Action) != 1 || pd.Action[0].ID != "tp-0" {
		t.Fatalf("pruned actions = %+v", pd.Action)
	}
	if len(pd.Action[0].Action) != 1 || pd.Action[0].Action[0].Definition != "ActivityDefinition/ad-1" {
		t.Fatalf("timepoint tests = %+v", pd.Action[0].Action)
	}

	// Partial share is recorded on the source.
	var source protocol.PlanDefinition
	json.Unmarshal(repo.resources["PlanDefinition/pd-1"], &source)
	if got := fhir.ExtensionString(source.Extension, fhir.ExtPlanPartialShare); got != "true" {
		t.Fatalf("partial share = %q", got)
	}
}

func TestShareAcceptsCanonicalModeLiterals(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	resp, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       ShareModeSpecific,
		SelectedTests:   []string{"ad-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Message != "protocol + 1 test definitions" {
		t.Fatalf("specificTests over-shared: %q", resp.Results[0].Message)
	}

	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       ShareModeFull,
	}); err != nil {
		t.Fatalf("fullProtocol rejected: %v", err)
	}
	full := rec.calls[len(rec.calls)-1].bundle
	if len(full.Entry) != 4 {
		t.Fatalf("fullProtocol bundle has %d entries, want organization + protocol + 2 tests", len(full.Entry))
	}
}

func TestShareRejectsUnknownMode(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	_, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       "everything",
	})
	if err == nil || !strings.Contains(err.Error(), "share_mode") {
		t.Fatalf("err = %v, want unknown share_mode", err)
	}
	if len(rec.calls) != 0 {
		t.Fatal("submit called for a rejected mode")
	}

	// Nothing was recorded on the source either.
	var source protocol.PlanDefinition
	json.Unmarshal(repo.resources["PlanDefinition/pd-1"], &source)
	if got := fhir.ExtensionString(source.Extension, fhir.ExtPlanSharedOrganizations); got != "" {
		t.Fatalf("share intent recorded despite rejected mode: %q", got)
	}
}

func TestShareSpecificFiltersTestDefinitionList(t *testing.T) {
	repo := newFakeRepo()
	seedTests(repo)
	repo.put("PlanDefinition", "pd-1", &protocol.PlanDefinition{
		ResourceType: "PlanDefinition",
		ID:           "pd-1",
		Title:        "Accelerated study",
		Action: []protocol.Action{
			{
				ID: "tp-0",
				Action: []protocol.Action{
					{ID: "a-1", Definition: "ActivityDefinition/ad-1"},
					{ID: "a-2", Definition: "ActivityDefinition/ad-2"},
				},
			},
		},
		Extension: []fhir.Extension{
			{URL: fhir.ExtTestDefinitions, Extension: []fhir.Extension{
				{URL: "test", ValueReference: &fhir.Reference{Reference: "ActivityDefinition/ad-1"}},
				{URL: "test", ValueReference: &fhir.Reference{Reference: "ActivityDefinition/ad-2"}},
			}},
		},
	})

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       ShareModeSpecific,
		SelectedTests:   []string{"ad-1"},
	}); err != nil {
		t.Fatal(err)
	}

	var pd protocol.PlanDefinition
	json.Unmarshal(rec.calls[0].bundle.Entry[1].Resource, &pd)
	ext, ok := fhir.FindExtension(pd.Extension, fhir.ExtTestDefinitions)
	if !ok {
		t.Fatal("test definition list dropped entirely")
	}
	if len(ext.Extension) != 1 || ext.Extension[0].ValueReference.Reference != "ActivityDefinition/ad-1" {
		t.Fatalf("test definition list = %+v, want only ad-1", ext.Extension)
	}

	// The source keeps its full list, so a later share can pick the rest.
	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       ShareModeSpecific,
		SelectedTests:   []string{"ad-2"},
	}); err != nil {
		t.Fatal(err)
	}
	var pd2 protocol.PlanDefinition
	json.Unmarshal(rec.calls[1].bundle.Entry[1].Resource, &pd2)
	ext2, _ := fhir.FindExtension(pd2.Extension, fhir.ExtTestDefinitions)
	if len(ext2.Extension) != 1 || ext2.Extension[0].ValueReference.Reference != "ActivityDefinition/ad-2" {
		t.Fatalf("second share list = %+v, want only ad-2", ext2.Extension)
	}
}

func TestShareAttributionPrefersProtocolExtensions(t *testing.T) {
	repo := newFakeRepo()
	seedTests(repo)
	repo.put("PlanDefinition", "pd-1", &protocol.PlanDefinition{
		ResourceType: "PlanDefinition",
		ID:           "pd-1",
		Title:        "Inherited study",
		Action: []protocol.Action{
			{ID: "tp-0", Action: []protocol.Action{{ID: "a-1", Definition: "ActivityDefinition/ad-1"}}},
		},
		Extension: []fhir.Extension{
			{URL: fhir.ExtSponsor, ValueString: "Origin Pharma"},
			{URL: fhir.ExtSponsorID, ValueString: "origin-7"},
		},
	})

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{OrganizationIDs: []string{"org-a"}}); err != nil {
		t.Fatal(err)
	}

	bundle := rec.calls[0].bundle
	if want := "identifier=" + fhir.IdentSponsor + "|origin-7"; bundle.Entry[0].Request.IfNoneExist != want {
		t.Fatalf("ifNoneExist = %q, want %q", bundle.Entry[0].Request.IfNoneExist, want)
	}
	var org organization.FHIROrganization
	json.Unmarshal(bundle.Entry[0].Resource, &org)
	if org.Name != "Origin Pharma" || len(org.Identifier) != 1 || org.Identifier[0].Value != "origin-7" {
		t.Fatalf("organization = %+v, want protocol's own attribution over the server's", org)
	}
	var pd protocol.PlanDefinition
	json.Unmarshal(bundle.Entry[1].Resource, &pd)
	if got := fhir.ExtensionString(pd.Extension, fhir.ExtSponsor); got != "Origin Pharma" {
		t.Fatalf("sponsor extension = %q", got)
	}
}

func TestShareAttributionPlaceholdersWhenUnconfigured(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	fixed := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	svc := NewService(repo, orgs, rec.submit, "", "", zerolog.Nop(), WithClock(fixed))

	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{OrganizationIDs: []string{"org-a"}}); err != nil {
		t.Fatal(err)
	}

	var org organization.FHIROrganization
	json.Unmarshal(rec.calls[0].bundle.Entry[0].Resource, &org)
	if org.Name != "Unknown Sponsor" {
		t.Fatalf("organization name = %q", org.Name)
	}
	if len(org.Identifier) != 1 || org.Identifier[0].Value != "UNKNOWN-20260314100000" {
		t.Fatalf("organization identifier = %+v", org.Identifier)
	}
}

func TestShareEmptySelectionSubmitsNothing(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"}}
	rec := &recorder{}
	svc := newTestService(repo, orgs, rec)

	resp, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a"},
		ShareMode:       "specific",
		SelectedTests:   []string{"no-such-test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("submit called %d times, want 0", len(rec.calls))
	}
	res := resp.Results[0]
	if res.Success || res.Message != "No tests selected" {
		t.Fatalf("result = %+v", res)
	}
}

func TestShareMissingProtocolIsFatal(t *testing.T) {
	repo := newFakeRepo()
	rec := &recorder{}
	svc := newTestService(repo, fakeOrgs{}, rec)

	_, err := svc.Share(context.Background(), "missing", &ShareRequest{OrganizationIDs: []string{"org-a"}})
	if !fhirclient.IsNotFound(err) {
		t.Fatalf("err = %v, want repository 404", err)
	}
	if len(rec.calls) != 0 {
		t.Fatal("submit called for a missing protocol")
	}
}

func TestShareOrganizationsAreIsolated(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{
		"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"},
		"org-b": {ID: "org-b", Name: "Borealis"}, // no endpoint
		"org-c": {ID: "org-c", Name: "Cascade", Endpoint: "http://cascade.example/fhir"},
	}
	rec := &recorder{fail: map[string]error{
		"http://cascade.example/fhir": &fhirclient.RepositoryError{Status: 422, Body: "rejected"},
	}}
	svc := newTestService(repo, orgs, rec)

	resp, err := svc.Share(context.Background(), "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a", "org-b", "org-c", "org-x"},
	})
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]OrgResult{}
	for _, r := range resp.Results {
		byID[r.OrganizationID] = r
	}
	if !byID["org-a"].Success {
		t.Fatalf("org-a failed: %s", byID["org-a"].Message)
	}
	if byID["org-b"].Success || byID["org-b"].Message != "organization has no FHIR endpoint" {
		t.Fatalf("org-b = %+v", byID["org-b"])
	}
	if byID["org-c"].Success || !strings.Contains(byID["org-c"].Message, "rejected") {
		t.Fatalf("org-c = %+v", byID["org-c"])
	}
	if byID["org-x"].Success {
		t.Fatal("unknown organization reported success")
	}
	if resp.Message != "shared with 1 of 4 organizations" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestListSharesReflectsShareIntent(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	seedTests(repo)

	orgs := fakeOrgs{
		"org-a": {ID: "org-a", Name: "Alpine", Endpoint: "http://alpine.example/fhir"},
	}
	svc := newTestService(repo, orgs, &recorder{})

	ctx := context.Background()
	if _, err := svc.Share(ctx, "pd-1", &ShareRequest{
		OrganizationIDs: []string{"org-a", "org-gone"},
		ShareMode:       "specific",
		SelectedTests:   []string{"ad-1"},
	}); err != nil {
		t.Fatal(err)
	}

	shares, err := svc.ListShares(ctx, "pd-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(shares) != 2 {
		t.Fatalf("listed %d shares, want 2", len(shares))
	}
	if shares[0].OrganizationID != "org-a" || shares[0].OrganizationName != "Alpine" {
		t.Fatalf("first share = %+v", shares[0])
	}
	// Unknown organizations still appear, nameless.
	if shares[1].OrganizationID != "org-gone" || shares[1].OrganizationName != "" {
		t.Fatalf("second share = %+v", shares[1])
	}
	for _, sh := range shares {
		if !sh.Partial {
			t.Fatalf("share %s not marked partial", sh.OrganizationID)
		}
		if sh.SharedDate != "2026-03-14T10:00:00Z" {
			t.Fatalf("share %s date = %q", sh.OrganizationID, sh.SharedDate)
		}
	}
}

func TestReceivePreservesPartnerIDs(t *testing.T) {
	repo := newFakeRepo()
	rec := &recorder{}
	svc := newTestService(repo, fakeOrgs{}, rec)

	bundle := &fhir.Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Entry: []fhir.BundleEntry{
			{
				FullURL:  "PlanDefinition/123",
				Resource: json.RawMessage(`{"resourceType":"PlanDefinition","id":"123","title":"Long-term"}`),
			},
			{
				FullURL:  "urn:uuid:9c1d",
				Resource: json.RawMessage(`{"resourceType":"ActivityDefinition","id":"ad-7","title":"Assay"}`),
			},
			{
				Resource: json.RawMessage(`{"title":"no resource type"}`),
			},
		},
	}

	resp, err := svc.Receive(context.Background(), bundle)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Stored != 2 || len(resp.Errors) != 1 {
		t.Fatalf("stored=%d errors=%v", resp.Stored, resp.Errors)
	}

	if _, ok := repo.resources["PlanDefinition/id-123"]; !ok {
		t.Fatal("numeric partner id not stored under id- prefix")
	}
	if _, ok := repo.resources["ActivityDefinition/ad-7"]; !ok {
		t.Fatal("partner id not preserved")
	}
}

func TestReceiveEmptyBundle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, fakeOrgs{}, &recorder{})
	if _, err := svc.Receive(context.Background(), &fhir.Bundle{ResourceType: "Bundle"}); err == nil {
		t.Fatal("empty bundle accepted")
	}
}

func TestShareRequiresOrganizations(t *testing.T) {
	repo := newFakeRepo()
	seedProtocol(repo)
	svc := newTestService(repo, fakeOrgs{}, &recorder{})
	if _, err := svc.Share(context.Background(), "pd-1", &ShareRequest{}); err == nil {
		t.Fatal("share without organizations accepted")
	}
}
