package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// ErrNotShared is returned when a partner fetches a protocol that has not
// been shared into its view. Handlers map it to 403.
var ErrNotShared = errors.New("protocol has not been shared")

var validStatuses = map[string]bool{
	"draft": true, "active": true, "retired": true, "unknown": true,
}

// Repo is the slice of the repository client this service uses.
type Repo interface {
	Read(ctx context.Context, resourceType, id string) (json.RawMessage, error)
	Search(ctx context.Context, resourceType string, query url.Values) (*fhir.Bundle, error)
	Create(ctx context.Context, resourceType string, resource interface{}) (json.RawMessage, error)
	Update(ctx context.Context, resourceType, id string, resource interface{}) (json.RawMessage, error)
	Delete(ctx context.Context, resourceType, id string) error
}

type Service struct {
	repo Repo
	log  zerolog.Logger
}

func NewService(repo Repo, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "protocol").Logger()}
}

func (s *Service) Create(ctx context.Context, p *Protocol) (*Protocol, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if p.Status != "" && !validStatuses[p.Status] {
		return nil, fmt.Errorf("invalid status %q", p.Status)
	}
	raw, err := s.repo.Create(ctx, "PlanDefinition", Encode(p))
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Get(ctx context.Context, id string) (*Protocol, error) {
	raw, err := s.repo.Read(ctx, "PlanDefinition", id)
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

// GetShared is the partner-side fetch: it refuses protocols that are not
// visible to the partner.
func (s *Service) GetShared(ctx context.Context, id string) (*Protocol, error) {
	raw, err := s.repo.Read(ctx, "PlanDefinition", id)
	if err != nil {
		return nil, err
	}
	var pd PlanDefinition
	if err := json.Unmarshal(raw, &pd); err != nil {
		return nil, fmt.Errorf("decode PlanDefinition: %w", err)
	}
	if !fhir.SharedWithPartner(pd.Meta, pd.Extension) {
		return nil, ErrNotShared
	}
	return Decode(&pd)
}

// Update replaces the protocol's content while carrying over the share
// state already recorded on the stored resource; editing a protocol must
// not silently un-share it.
func (s *Service) Update(ctx context.Context, id string, p *Protocol) (*Protocol, error) {
	raw, err := s.repo.Read(ctx, "PlanDefinition", id)
	if err != nil {
		return nil, err
	}
	var existing PlanDefinition
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("decode PlanDefinition: %w", err)
	}

	p.ID = id
	pd := Encode(p)
	pd.Meta = existing.Meta
	for _, u := range []string{fhir.ExtPlanSharedOrganizations, fhir.ExtPlanPartialShare, fhir.ExtSharedDate} {
		if ext, ok := fhir.FindExtension(existing.Extension, u); ok {
			if _, present := fhir.FindExtension(pd.Extension, u); !present {
				pd.Extension = append(pd.Extension, ext)
			}
		}
	}

	updated, err := s.repo.Update(ctx, "PlanDefinition", id, pd)
	if err != nil {
		return nil, err
	}
	return decodeRaw(updated)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, "PlanDefinition", id)
}

// List returns every protocol on the repository. Entries that fail to
// decode are logged and skipped, never fatal for the listing.
func (s *Service) List(ctx context.Context) ([]*Protocol, error) {
	return s.list(ctx, false)
}

// ListShared returns only protocols visible to a partner role.
func (s *Service) ListShared(ctx context.Context) ([]*Protocol, error) {
	return s.list(ctx, true)
}

func (s *Service) list(ctx context.Context, sharedOnly bool) ([]*Protocol, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "PlanDefinition", q)
	if err != nil {
		return nil, err
	}

	out := []*Protocol{}
	for _, entry := range bundle.Entry {
		var pd PlanDefinition
		if err := json.Unmarshal(entry.Resource, &pd); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable PlanDefinition entry")
			continue
		}
		if sharedOnly && !fhir.SharedWithPartner(pd.Meta, pd.Extension) {
			continue
		}
		p, err := Decode(&pd)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping PlanDefinition without id")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeRaw(raw json.RawMessage) (*Protocol, error) {
	var pd PlanDefinition
	if err := json.Unmarshal(raw, &pd); err != nil {
		return nil, fmt.Errorf("decode PlanDefinition: %w", err)
	}
	return Decode(&pd)
}
