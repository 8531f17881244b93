package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// LayerHandle identifies a published marker layer. The zero value means
// there is no previous layer.
type LayerHandle string

// Layer is one batch of classified markers, published as a whole to the map
// rendering surface. It replaces the layer named by Replaces. Callers must not
// publish a layer whose ID equals Replaces; Unchanged detects that case.
type Layer struct {
	ID          LayerHandle       `json:"id"`
	Replaces    LayerHandle       `json:"replaces,omitempty"`
	Points      []ClassifiedPoint `json:"points"`
	Bounds      *BoundingBox      `json:"bounds"`
	Dropped     int               `json:"dropped"`
	Magnitudes  MagnitudeStats    `json:"magnitudes"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// NewLayer wraps a classification result into a layer that replaces prev.
// The previous handle is supplied by the caller; nothing here remembers it.
func NewLayer(prev LayerHandle, r Result) Layer {
	return Layer{
		ID:          generateLayerID(r),
		Replaces:    prev,
		Points:      r.Points,
		Bounds:      r.Bounds,
		Dropped:     r.Dropped,
		Magnitudes:  r.Magnitudes,
		ProcessedAt: clock.Now(),
	}
}

// Unchanged reports whether the layer carries the same content as the layer it
// would replace, in which case publishing it would make it replace itself.
func (l Layer) Unchanged() bool {
	return l.Replaces != "" && l.ID == l.Replaces
}

// generateLayerID hashes the drawn content of every point plus the drop count.
// Replaying a batch reproduces the ID; a magnitude revision changes it even
// when the tier does not.
func generateLayerID(r Result) LayerHandle {
	h := sha256.New()
	fmt.Fprintf(h, "dropped=%d;", r.Dropped)
	for _, p := range r.Points {
		mag := "-"
		if p.Magnitude != nil {
			mag = strconv.FormatFloat(*p.Magnitude, 'g', -1, 64)
		}
		fmt.Fprintf(h, "%.5f|%.5f|%.2f|%s|%s|%.3f|%v;",
			p.Lat, p.Lng, p.DepthKm, mag, p.ColorToken, p.RadiusPx, eventID(p.SourceProperties))
	}
	sum := h.Sum(nil)
	return LayerHandle("layer-" + hex.EncodeToString(sum[:8]))
}

// eventID returns the passthrough event identifier, if any.
func eventID(props map[string]any) any {
	if props == nil {
		return nil
	}
	if v, ok := props["eventId"]; ok {
		return v
	}
	return props["eventid"]
}
