package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
)

// FeatureTransformer implements Transformer by decoding one GeoJSON feature
// per message. Coordinate validation happens later, in domain.Classify.
type FeatureTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a FeatureTransformer.
func NewTransformer(logger *slog.Logger) *FeatureTransformer {
	return &FeatureTransformer{logger: logger}
}

func (t *FeatureTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Feature, error) {
	f, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.Feature{}, err
	}
	if f.Geometry == nil {
		t.logger.Debug("feature without geometry", "topic", raw.Topic, "offset", raw.Offset)
	}
	return f, nil
}
