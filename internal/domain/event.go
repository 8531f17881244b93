package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Geometry is the GeoJSON geometry of a feature. Coordinates are kept loosely
// typed because upstream feeds occasionally carry strings or nulls.
type Geometry struct {
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Coordinates []any  `json:"coordinates" yaml:"coordinates"`
}

// Feature is a single earthquake record as received from the feed.
type Feature struct {
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Geometry   *Geometry      `json:"geometry" yaml:"geometry"`
	Properties map[string]any `json:"properties" yaml:"properties"`
}

// FeatureCollection is the GeoJSON envelope returned by the FDSN service.
type FeatureCollection struct {
	Type     string    `json:"type" yaml:"type"`
	Features []Feature `json:"features" yaml:"features"`
}

// Tier is a marker severity tier.
type Tier string

const (
	TierMinimal  Tier = "minimal"
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierSevere   Tier = "severe"
)

// ClassifiedPoint is a render-ready marker.
type ClassifiedPoint struct {
	Lat        float64  `json:"lat" yaml:"lat"`
	Lng        float64  `json:"lng" yaml:"lng"`
	DepthKm    float64  `json:"depth_km" yaml:"depth_km"`
	RadiusPx   float64  `json:"radius_px" yaml:"radius_px"`
	ColorToken Tier     `json:"color_token" yaml:"color_token"`
	Color      string   `json:"color" yaml:"color"`
	Magnitude  *float64 `json:"magnitude" yaml:"magnitude"` // nil when the feed gave none

	// SourceProperties references the input feature's properties. It is never copied or mutated.
	SourceProperties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// BoundingBox is the minimal lat/lng rectangle containing every valid point.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// MagnitudeStats summarizes the magnitudes that were actually reported.
type MagnitudeStats struct {
	Count int     `json:"count" yaml:"count"`
	Min   float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean  float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
}

// Result is the output of a single Classify call.
type Result struct {
	Points     []ClassifiedPoint `json:"points" yaml:"points"`
	Bounds     *BoundingBox      `json:"bounds" yaml:"bounds"` // nil when no point is valid
	Dropped    int               `json:"dropped" yaml:"dropped"`
	Magnitudes MagnitudeStats    `json:"magnitudes" yaml:"magnitudes"`
}
