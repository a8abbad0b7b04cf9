package testdef

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// ErrNotShared is returned when a partner fetches a test definition that has
// not been shared into its view. Handlers map it to 403.
var ErrNotShared = errors.New("test definition has not been shared")

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
	return &Service{repo: repo, log: log.With().Str("component", "testdef").Logger()}
}

func (s *Service) Create(ctx context.Context, td *TestDefinition) (*TestDefinition, error) {
	if td.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	raw, err := s.repo.Create(ctx, "ActivityDefinition", Encode(td))
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

func (s *Service) Get(ctx context.Context, id string) (*TestDefinition, error) {
	raw, err := s.repo.Read(ctx, "ActivityDefinition", id)
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

// GetShared is the partner-side fetch: it refuses test definitions that are
// not visible to the partner.
func (s *Service) GetShared(ctx context.Context, id string) (*TestDefinition, error) {
	raw, err := s.repo.Read(ctx, "ActivityDefinition", id)
	if err != nil {
		return nil, err
	}
	var ad ActivityDefinition
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, fmt.Errorf("decode ActivityDefinition: %w", err)
	}
	if !fhir.SharedWithPartner(ad.Meta, ad.Extension) {
		return nil, ErrNotShared
	}
	td, clean, err := Decode(&ad)
	if err != nil {
		return nil, err
	}
	if !clean {
		s.log.Warn().Str("id", td.ID).Msg("test definition carries malformed parameter blob")
	}
	return td, nil
}

func (s *Service) Update(ctx context.Context, id string, td *TestDefinition) (*TestDefinition, error) {
	td.ID = id
	raw, err := s.repo.Update(ctx, "ActivityDefinition", id, Encode(td))
	if err != nil {
		return nil, err
	}
	return s.decodeRaw(raw)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, "ActivityDefinition", id)
}

// List returns every test definition, optionally narrowed to one protocol
// and, for partner roles, to shared resources only.
func (s *Service) List(ctx context.Context, protocolID string, sharedOnly bool) ([]*TestDefinition, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "ActivityDefinition", q)
	if err != nil {
		return nil, err
	}

	out := []*TestDefinition{}
	for _, entry := range bundle.Entry {
		var ad ActivityDefinition
		if err := json.Unmarshal(entry.Resource, &ad); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable ActivityDefinition entry")
			continue
		}
		if sharedOnly && !fhir.SharedWithPartner(ad.Meta, ad.Extension) {
			continue
		}
		if protocolID != "" && ProtocolID(&ad) != protocolID {
			continue
		}
		td, clean, err := Decode(&ad)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping ActivityDefinition without id")
			continue
		}
		if !clean {
			s.log.Warn().Str("id", td.ID).Msg("test definition carries malformed parameter blob")
		}
		out = append(out, td)
	}
	return out, nil
}

func (s *Service) decodeRaw(raw json.RawMessage) (*TestDefinition, error) {
	var ad ActivityDefinition
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, fmt.Errorf("decode ActivityDefinition: %w", err)
	}
	td, clean, err := Decode(&ad)
	if err != nil {
		return nil, err
	}
	if !clean {
		s.log.Warn().Str("id", td.ID).Msg("test definition carries malformed parameter blob")
	}
	return td, nil
}
