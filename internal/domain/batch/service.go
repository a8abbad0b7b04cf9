package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

// ErrNotShared is returned when a partner fetches a batch that has not been
// shared into its view. Handlers map it to 403.
var ErrNotShared = errors.New("batch has not been shared")

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
	return &Service{repo: repo, log: log.With().Str("component", "batch").Logger()}
}

func (s *Service) Create(ctx context.Context, b *Batch) (*Batch, error) {
	if b.BatchNumber == "" && b.Name == "" && b.Identifier == "" && b.LotNumber == "" {
		return nil, fmt.Errorf("batch_number, name, identifier or lot_number is required")
	}
	switch b.Encoding {
	case "", EncodingDevice:
		raw, err := s.repo.Create(ctx, "Device", EncodeDevice(b))
		if err != nil {
			return nil, err
		}
		return decodeRawDevice(raw)
	case EncodingMedication:
		raw, err := s.repo.Create(ctx, "Medication", EncodeMedication(b))
		if err != nil {
			return nil, err
		}
		return decodeRawMedication(raw)
	default:
		return nil, fmt.Errorf("unknown batch encoding %q", b.Encoding)
	}
}

// Get tries the Device encoding first and falls back to Medication, so
// callers do not need to know which shape a batch was stored under.
func (s *Service) Get(ctx context.Context, id string) (*Batch, error) {
	raw, err := s.repo.Read(ctx, "Device", id)
	if err == nil {
		return decodeRawDevice(raw)
	}
	raw, merr := s.repo.Read(ctx, "Medication", id)
	if merr != nil {
		return nil, err
	}
	return decodeRawMedication(raw)
}

// GetShared is the partner-side fetch: it refuses batches that are not
// visible to the partner, in either encoding.
func (s *Service) GetShared(ctx context.Context, id string) (*Batch, error) {
	raw, err := s.repo.Read(ctx, "Device", id)
	if err == nil {
		var d Device
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode Device: %w", err)
		}
		if !fhir.SharedWithPartner(d.Meta, d.Extension) {
			return nil, ErrNotShared
		}
		return DecodeDevice(&d)
	}
	raw, merr := s.repo.Read(ctx, "Medication", id)
	if merr != nil {
		return nil, err
	}
	var m Medication
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode Medication: %w", err)
	}
	if !fhir.SharedWithPartner(m.Meta, m.Extension) {
		return nil, ErrNotShared
	}
	return DecodeMedication(&m)
}

func (s *Service) Update(ctx context.Context, id string, b *Batch) (*Batch, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b.ID = id
	if b.Encoding == "" {
		b.Encoding = existing.Encoding
	}
	switch b.Encoding {
	case EncodingMedication:
		raw, err := s.repo.Update(ctx, "Medication", id, EncodeMedication(b))
		if err != nil {
			return nil, err
		}
		return decodeRawMedication(raw)
	default:
		raw, err := s.repo.Update(ctx, "Device", id, EncodeDevice(b))
		if err != nil {
			return nil, err
		}
		return decodeRawDevice(raw)
	}
}

func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Encoding == EncodingMedication {
		return s.repo.Delete(ctx, "Medication", id)
	}
	return s.repo.Delete(ctx, "Device", id)
}

// List unions both encodings, deduplicated by id; a resource present in
// both shapes keeps its Device reading.
func (s *Service) List(ctx context.Context, protocolID string, sharedOnly bool) ([]*Batch, error) {
	q := url.Values{}
	q.Set("_count", "200")

	out := []*Batch{}
	seen := map[string]bool{}

	devices, err := s.repo.Search(ctx, "Device", q)
	if err != nil {
		return nil, err
	}
	for _, entry := range devices.Entry {
		var d Device
		if err := json.Unmarshal(entry.Resource, &d); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable Device entry")
			continue
		}
		if sharedOnly && !fhir.SharedWithPartner(d.Meta, d.Extension) {
			continue
		}
		b, err := DecodeDevice(&d)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping Device without id")
			continue
		}
		if protocolID != "" && b.ProtocolID != protocolID {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}

	medications, err := s.repo.Search(ctx, "Medication", q)
	if err != nil {
		return nil, err
	}
	for _, entry := range medications.Entry {
		var m Medication
		if err := json.Unmarshal(entry.Resource, &m); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable Medication entry")
			continue
		}
		if sharedOnly && !fhir.SharedWithPartner(m.Meta, m.Extension) {
			continue
		}
		b, err := DecodeMedication(&m)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping Medication without id")
			continue
		}
		if protocolID != "" && b.ProtocolID != protocolID {
			continue
		}
		if seen[b.ID] {
			continue
		}
		out = append(out, b)
	}

	return out, nil
}

func decodeRawDevice(raw json.RawMessage) (*Batch, error) {
	var d Device
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode Device: %w", err)
	}
	return DecodeDevice(&d)
}

func decodeRawMedication(raw json.RawMessage) (*Batch, error) {
	var m Medication
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode Medication: %w", err)
	}
	return DecodeMedication(&m)
}
