package domain

import "math"

const (
	minRadiusPx       = 3.0
	maxRadiusPx       = 18.0
	baseRadiusPx      = 3.0
	radiusGrowthPower = 1.6
)

// tierThresholds is ordered from the highest threshold down; the first match wins.
var tierThresholds = []struct {
	min  float64
	tier Tier
}{
	{6.0, TierSevere},
	{5.0, TierHigh},
	{4.0, TierModerate},
	{2.0, TierLow},
}

var tierColors = map[Tier]string{
	TierMinimal:  "#2b83ba",
	TierLow:      "#abdda4",
	TierModerate: "#ffffbf",
	TierHigh:     "#fdae61",
	TierSevere:   "#d7191c",
}

// Tiers returns every tier from the least to the most severe.
func Tiers() []Tier {
	return []Tier{TierMinimal, TierLow, TierModerate, TierHigh, TierSevere}
}

// Color returns the marker fill colour for the tier.
func (t Tier) Color() string {
	if c, ok := tierColors[t]; ok {
		return c
	}
	return tierColors[TierMinimal]
}

// TierFor maps a magnitude to its severity tier. Boundary values take the
// higher tier.
func TierFor(magnitude float64) Tier {
	for _, th := range tierThresholds {
		if magnitude >= th.min {
			return th.tier
		}
	}
	return TierMinimal
}

// RadiusPx maps a magnitude to a marker radius in pixels. The result is
// monotone in magnitude and always within [3, 18].
func RadiusPx(magnitude float64) float64 {
	if math.IsNaN(magnitude) || magnitude <= 0 {
		return minRadiusPx
	}
	r := baseRadiusPx + math.Pow(magnitude, radiusGrowthPower)
	return math.Min(math.Max(r, minRadiusPx), maxRadiusPx)
}

// Classify converts raw features into marker points plus the bounding box of
// every valid point. Malformed features are skipped, never reported as errors.
// The input is not modified.
func Classify(features []Feature) Result {
	res := Result{Points: make([]ClassifiedPoint, 0, len(features))}
	var box boundsAccumulator
	var mags magnitudeAccumulator

	for _, f := range features {
		pos, ok := parsePosition(f)
		if !ok {
			res.Dropped++
			continue
		}

		mag, hasMag := parseMagnitude(f.Properties)
		var magPtr *float64
		if hasMag {
			m := mag
			magPtr = &m
			mags.add(mag)
		}

		tier := TierFor(mag)
		res.Points = append(res.Points, ClassifiedPoint{
			Lat:              pos.lat,
			Lng:              pos.lng,
			DepthKm:          pos.depth,
			RadiusPx:         RadiusPx(mag),
			ColorToken:       tier,
			Color:            tier.Color(),
			Magnitude:        magPtr,
			SourceProperties: f.Properties,
		})
		box.add(pos.lat, pos.lng)
	}

	res.Bounds = box.bounds()
	res.Magnitudes = mags.stats()
	return res
}

type magnitudeAccumulator struct {
	count    int
	min, max float64
	sum      float64
}

func (a *magnitudeAccumulator) add(m float64) {
	if a.count == 0 || m < a.min {
		a.min = m
	}
	if a.count == 0 || m > a.max {
		a.max = m
	}
	a.sum += m
	a.count++
}

func (a *magnitudeAccumulator) stats() MagnitudeStats {
	if a.count == 0 {
		return MagnitudeStats{}
	}
	return MagnitudeStats{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.sum / float64(a.count),
	}
}
