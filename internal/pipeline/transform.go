package pipeline

import (
	"context"

	"github.com/couchcryptid/station-table-service/internal/domain"
)

// StationTransformer implements Transformer using the domain parse and
// transform functions.
type StationTransformer struct{}

// NewTransformer creates a StationTransformer.
func NewTransformer() *StationTransformer {
	return &StationTransformer{}
}

// Transform decodes raw and derives its table value.
func (t *StationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.TransformedStation, error) {
	event, err := domain.ParseStationEvent(raw)
	if err != nil {
		return domain.TransformedStation{}, err
	}
	return domain.TransformStation(event), nil
}
