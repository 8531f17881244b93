package domain

// boundsAccumulator is a running min/max reduction over validated points.
// The first point seeds all four extents.
type boundsAccumulator struct {
	n              int
	minLat, maxLat float64
	minLng, maxLng float64
}

func (a *boundsAccumulator) add(lat, lng float64) {
	if a.n == 0 {
		a.minLat, a.maxLat = lat, lat
		a.minLng, a.maxLng = lng, lng
		a.n++
		return
	}
	a.minLat = min(a.minLat, lat)
	a.maxLat = max(a.maxLat, lat)
	a.minLng = min(a.minLng, lng)
	a.maxLng = max(a.maxLng, lng)
	a.n++
}

func (a *boundsAccumulator) bounds() *BoundingBox {
	if a.n == 0 {
		return nil
	}
	return &BoundingBox{
		MinLat: a.minLat,
		MinLng: a.minLng,
		MaxLat: a.maxLat,
		MaxLng: a.maxLng,
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Pad widens the box by deg degrees on every side, clamped to world extents.
// Out-of-range extents are clamped first, so the result stays ordered.
// Negative or NaN padding leaves the clamped box unchanged.
func (b BoundingBox) Pad(deg float64) BoundingBox {
	if !(deg > 0) {
		deg = 0
	}
	b.MinLat = max(clamp(b.MinLat, -90, 90)-deg, -90)
	b.MaxLat = min(clamp(b.MaxLat, -90, 90)+deg, 90)
	b.MinLng = max(clamp(b.MinLng, -180, 180)-deg, -180)
	b.MaxLng = min(clamp(b.MaxLng, -180, 180)+deg, 180)
	return b
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
