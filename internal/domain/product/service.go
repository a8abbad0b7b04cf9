package product

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
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
	return &Service{repo: repo, log: log.With().Str("component", "product").Logger()}
}

func (s *Service) Create(ctx context.Context, p *Product) (*Product, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	raw, err := s.repo.Create(ctx, "MedicinalProductDefinition", Encode(p))
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	raw, err := s.repo.Read(ctx, "MedicinalProductDefinition", id)
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Update(ctx context.Context, id string, p *Product) (*Product, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	p.ID = id
	raw, err := s.repo.Update(ctx, "MedicinalProductDefinition", id, Encode(p))
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, "MedicinalProductDefinition", id)
}

func (s *Service) List(ctx context.Context) ([]*Product, error) {
	q := url.Values{}
	q.Set("_count", "200")
	bundle, err := s.repo.Search(ctx, "MedicinalProductDefinition", q)
	if err != nil {
		return nil, err
	}

	out := []*Product{}
	for _, entry := range bundle.Entry {
		var mpd MedicinalProductDefinition
		if err := json.Unmarshal(entry.Resource, &mpd); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable MedicinalProductDefinition entry")
			continue
		}
		p, err := Decode(&mpd)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeRaw(raw json.RawMessage) (*Product, error) {
	var mpd MedicinalProductDefinition
	if err := json.Unmarshal(raw, &mpd); err != nil {
		return nil, fmt.Errorf("decode MedicinalProductDefinition: %w", err)
	}
	return Decode(&mpd)
}
