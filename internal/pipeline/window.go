package pipeline

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
)

// featureWindow keeps the most recent features, oldest first. A feature whose
// eventId is already present replaces the earlier revision in place, so INGV
// magnitude revisions do not produce duplicate markers.
type featureWindow struct {
	size     int
	features []domain.Feature
	index    map[string]int
}

func newFeatureWindow(size int) *featureWindow {
	return &featureWindow{
		size:  size,
		index: make(map[string]int),
	}
}

func (w *featureWindow) add(f domain.Feature) {
	key, ok := eventKey(f)
	if ok {
		if i, seen := w.index[key]; seen {
			w.features[i] = f
			return
		}
		w.index[key] = len(w.features)
	}
	w.features = append(w.features, f)

	if len(w.features) > w.size {
		w.features = append(w.features[:0:0], w.features[len(w.features)-w.size:]...)
		w.reindex()
	}
}

func (w *featureWindow) reindex() {
	clear(w.index)
	for i, f := range w.features {
		if key, ok := eventKey(f); ok {
			w.index[key] = i
		}
	}
}

// snapshot returns a copy of the window contents.
func (w *featureWindow) snapshot() []domain.Feature {
	out := make([]domain.Feature, len(w.features))
	copy(out, w.features)
	return out
}

func (w *featureWindow) count() int { return len(w.features) }

func eventKey(f domain.Feature) (string, bool) {
	if f.Properties == nil {
		return "", false
	}
	for _, k := range []string{"eventId", "eventid"} {
		switch v := f.Properties[k].(type) {
		case nil:
			continue
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		default:
			return fmt.Sprint(v), true
		}
	}
	return "", false
}
