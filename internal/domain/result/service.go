package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// ErrResultLocked is returned when a result already shared with the sponsor
// is updated or deleted. Handlers map it to 403.
var ErrResultLocked = errors.New("result has been shared with the sponsor and is immutable")

// ErrNotShared is returned when a sponsor or regulator fetches a result the
// CRO has not shared. Handlers map it to 403.
var ErrNotShared = errors.New("result has not been shared")

type Repo interface {
	Read(ctx context.Context, resourceType, id string) (json.RawMessage, error)
	Search(ctx context.Context, resourceType string, query url.Values) (*fhir.Bundle, error)
	Create(ctx context.Context, resourceType string, resource interface{}) (json.RawMessage, error)
	Update(ctx context.Context, resourceType, id string, resource interface{}) (json.RawMessage, error)
	Delete(ctx context.Context, resourceType, id string) error
}

// SponsorDirectory resolves the sponsor organization's FHIR endpoint so
// shared results can be forwarded to it.
type SponsorDirectory interface {
	SponsorEndpoint(ctx context.Context) (endpoint, apiKey string, err error)
}

// RemoteSubmitter posts a transaction bundle to a partner FHIR server.
type RemoteSubmitter func(ctx context.Context, endpoint, apiKey string, bundle *fhir.Bundle) error

// ListFilter narrows result listings.
type ListFilter struct {
	ProtocolID       string
	BatchID          string
	TestDefinitionID string
	TimepointID      string
	SharedOnly       bool
}

// ShareOutcome reports what happened when a result was shared with the
// sponsor: the local mark always comes first, forwarding is reported
// separately because the sponsor's server may be unreachable.
type ShareOutcome struct {
	ResultID  string `json:"result_id"`
	Shared    bool   `json:"shared"`
	Forwarded bool   `json:"forwarded"`
	Message   string `json:"message,omitempty"`
}

type Service struct {
	repo   Repo
	orgs   SponsorDirectory
	submit RemoteSubmitter
	log    zerolog.Logger
}

func NewService(repo Repo, orgs SponsorDirectory, submit RemoteSubmitter, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		orgs:   orgs,
		submit: submit,
		log:    log.With().Str("component", "result").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, r *TestResult) (*TestResult, error) {
	if r.TestDefinitionID == "" {
		return nil, fmt.Errorf("test_definition_id is required")
	}
	raw, err := s.repo.Create(ctx, "Observation", Encode(r))
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

func (s *Service) Get(ctx context.Context, id string) (*TestResult, error) {
	raw, err := s.repo.Read(ctx, "Observation", id)
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

// GetShared is the sponsor/regulator fetch: it refuses results the CRO has
// not shared.
func (s *Service) GetShared(ctx context.Context, id string) (*TestResult, error) {
	raw, err := s.repo.Read(ctx, "Observation", id)
	if err != nil {
		return nil, err
	}
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode Observation: %w", err)
	}
	if !fhir.SharedWithSponsor(obs.Meta, obs.Extension) {
		return nil, ErrNotShared
	}
	r, clean, err := Decode(&obs)
	if err != nil {
		return nil, err
	}
	if !clean {
		s.log.Warn().Str("id", r.ID).Msg("result carries malformed blob")
	}
	return r, nil
}

// Update refuses results already shared with the sponsor.
func (s *Service) Update(ctx context.Context, id string, r *TestResult) (*TestResult, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.SharedWithSponsor {
		return nil, ErrResultLocked
	}
	r.ID = id
	raw, err := s.repo.Update(ctx, "Observation", id, Encode(r))
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

// Delete refuses results already shared with the sponsor.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.SharedWithSponsor {
		return ErrResultLocked
	}
	return s.repo.Delete(ctx, "Observation", id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*TestResult, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "Observation", q)
	if err != nil {
		return nil, err
	}

	out := []*TestResult{}
	for _, entry := range bundle.Entry {
		var obs Observation
		if err := json.Unmarshal(entry.Resource, &obs); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable Observation entry")
			continue
		}
		if filter.SharedOnly && !fhir.SharedWithSponsor(obs.Meta, obs.Extension) {
			continue
		}
		r, clean, err := Decode(&obs)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping Observation without id")
			continue
		}
		if !clean {
			s.log.Warn().Str("id", r.ID).Msg("result carries malformed blob")
		}
		if filter.ProtocolID != "" && r.ProtocolID != filter.ProtocolID {
			continue
		}
		if filter.BatchID != "" && r.BatchID != filter.BatchID {
			continue
		}
		if filter.TestDefinitionID != "" && r.TestDefinitionID != filter.TestDefinitionID {
			continue
		}
		if filter.TimepointID != "" && r.TimepointID != filter.TimepointID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Share marks the result shared-with-sponsor on the local repository and
// forwards a copy to the sponsor's FHIR server. The local mark is the
// source of truth; a forwarding failure is reported, not rolled back.
func (s *Service) Share(ctx context.Context, id string) (*ShareOutcome, error) {
	raw, err := s.repo.Read(ctx, "Observation", id)
	if err != nil {
		return nil, err
	}
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode Observation: %w", err)
	}

	obs.Extension = fhir.ReplaceExtension(obs.Extension, fhir.Extension{
		URL:          fhir.ExtSharedWithSponsor,
		ValueBoolean: fhir.BoolPtr(true),
	})
	obs.Meta = fhir.AddTag(obs.Meta, fhir.TagSystem, fhir.TagCROGeneratedResult)

	if _, err := s.repo.Update(ctx, "Observation", id, &obs); err != nil {
		return nil, err
	}

	outcome := &ShareOutcome{ResultID: id, Shared: true}

	endpoint, apiKey, err := s.orgs.SponsorEndpoint(ctx)
	if err != nil {
		outcome.Message = fmt.Sprintf("shared locally; sponsor endpoint unavailable: %v", err)
		s.log.Warn().Err(err).Str("result_id", id).Msg("sponsor endpoint lookup failed")
		return outcome, nil
	}

	copyObs := obs
	copyObs.ID = ""
	copyObs.Meta = fhir.AddTag(nil, fhir.TagSystem, fhir.TagCROGeneratedResult)
	bundle := fhir.NewTransaction()
	if _, err := bundle.AddPost("Observation", &copyObs); err != nil {
		return nil, err
	}
	if err := s.submit(ctx, endpoint, apiKey, bundle); err != nil {
		outcome.Message = fmt.Sprintf("shared locally; forwarding to sponsor failed: %v", err)
		s.log.Warn().Err(err).Str("result_id", id).Msg("result forwarding failed")
		return outcome, nil
	}

	outcome.Forwarded = true
	outcome.Message = "result shared with sponsor"
	return outcome, nil
}

// ReceiveExternal stores an already-encoded Observation delivered by a
// partner, tagging it cro-provided-result so read views can tell it apart
// from locally captured results.
func (s *Service) ReceiveExternal(ctx context.Context, raw json.RawMessage) (*TestResult, error) {
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode Observation: %w", err)
	}
	if obs.ResourceType != "Observation" {
		return nil, fmt.Errorf("expected Observation, got %q", obs.ResourceType)
	}
	obs.ID = ""
	obs.Meta = fhir.AddTag(obs.Meta, fhir.TagSystem, fhir.TagCROProvidedResult)

	stored, err := s.repo.Create(ctx, "Observation", &obs)
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(stored)
}

func (s *Service) decodeRaw(raw json.RawMessage) (*TestResult, error) {
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode Observation: %w", err)
	}
	r, clean, err := Decode(&obs)
	if err != nil {
		return nil, err
	}
	if !clean {
		s.log.Warn().Str("id", r.ID).Msg("result carries malformed blob")
	}
	return r, nil
}
