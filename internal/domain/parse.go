package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseRawEvent deserializes a RawEvent's value into a Feature.
// It expects one GeoJSON feature object per message.
func ParseRawEvent(raw RawEvent) (Feature, error) {
	var f Feature
	if err := json.Unmarshal(raw.Value, &f); err != nil {
		return Feature{}, fmt.Errorf("parse raw event: %w", err)
	}
	return f, nil
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection document.
func ParseFeatureCollection(data []byte) ([]Feature, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	return fc.Features, nil
}

// parseNumber converts a loosely typed JSON value into a finite float64.
// It returns false for nil, non-numeric values, and NaN/Inf.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// position is a validated coordinate triple.
type position struct {
	lng, lat, depth float64
}

// parsePosition extracts [lon, lat, depth?] from a feature. Depth falls back
// to 0; a missing or non-finite lon/lat invalidates the whole position.
func parsePosition(f Feature) (position, bool) {
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
		return position{}, false
	}
	coords := f.Geometry.Coordinates
	lng, ok := parseNumber(coords[0])
	if !ok {
		return position{}, false
	}
	lat, ok := parseNumber(coords[1])
	if !ok {
		return position{}, false
	}
	var depth float64
	if len(coords) > 2 {
		if d, ok := parseNumber(coords[2]); ok {
			depth = d
		}
	}
	return position{lng: lng, lat: lat, depth: depth}, true
}

// parseMagnitude reads properties.mag, falling back to properties.magnitude
// when mag is absent or null.
func parseMagnitude(props map[string]any) (float64, bool) {
	if props == nil {
		return 0, false
	}
	v, ok := props["mag"]
	if !ok || v == nil {
		v = props["magnitude"]
	}
	return parseNumber(v)
}

// Locatable reports whether Classify would keep the feature, that is whether
// it carries a finite longitude and latitude.
func Locatable(f Feature) bool {
	_, ok := parsePosition(f)
	return ok
}
