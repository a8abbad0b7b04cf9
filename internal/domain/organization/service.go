package organization

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhirclient"
)

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
	return &Service{repo: repo, log: log.With().Str("component", "organization").Logger()}
}

func (s *Service) Create(ctx context.Context, o *Organization) (*Organization, error) {
	if o.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	o.Active = true
	raw, err := s.repo.Create(ctx, "Organization", Encode(o))
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	raw, err := s.repo.Read(ctx, "Organization", id)
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Update(ctx context.Context, id string, o *Organization) (*Organization, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.ID = id
	o.Active = existing.Active
	raw, err := s.repo.Update(ctx, "Organization", id, Encode(o))
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

// Delete removes the organization. Repositories with referential
// integrity refuse hard deletes of referenced resources; those fall back
// to a soft delete (active=false) so listings stop showing the partner.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, "Organization", id)
	if err == nil {
		return nil
	}
	if !fhirclient.IsStatus(err, http.StatusConflict) && !fhirclient.IsStatus(err, http.StatusMethodNotAllowed) {
		return err
	}

	s.log.Info().Str("id", id).Msg("hard delete refused, deactivating organization")
	o, gerr := s.Get(ctx, id)
	if gerr != nil {
		return err
	}
	o.Active = false
	if _, uerr := s.repo.Update(ctx, "Organization", id, Encode(o)); uerr != nil {
		return uerr
	}
	return nil
}

// List returns partner organizations; inactive ones only when requested.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Organization, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "Organization", q)
	if err != nil {
		return nil, err
	}

	out := []*Organization{}
	for _, entry := range bundle.Entry {
		var fo FHIROrganization
		if err := json.Unmarshal(entry.Resource, &fo); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable Organization entry")
			continue
		}
		o, err := Decode(&fo)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping Organization without id")
			continue
		}
		if !includeInactive && !o.Active {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// SponsorEndpoint resolves the sponsor organization's FHIR endpoint and
// API key. Used when forwarding shared results upstream.
func (s *Service) SponsorEndpoint(ctx context.Context) (string, string, error) {
	orgs, err := s.List(ctx, false)
	if err != nil {
		return "", "", err
	}
	for _, o := range orgs {
		if o.Type == "sponsor" && o.Endpoint != "" {
			return o.Endpoint, o.APIKey, nil
		}
	}
	return "", "", fmt.Errorf("no sponsor organization with an endpoint is registered")
}

func decodeRaw(raw json.RawMessage) (*Organization, error) {
	var fo FHIROrganization
	if err := json.Unmarshal(raw, &fo); err != nil {
		return nil, fmt.Errorf("decode Organization: %w", err)
	}
	return Decode(&fo)
}
