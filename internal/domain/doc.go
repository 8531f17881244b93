// Package domain classifies earthquake feature records into map markers.
//
// # Data Source
//
// Features originate from the INGV FDSN event web service
// (https://webservices.ingv.it/fdsnws/event/1/), queried with format=geojson.
// The upstream feed publisher republishes each feature as a standalone JSON
// object on the Kafka source topic.
//
// # Feature Conventions
//
// Coordinates follow GeoJSON order:
//
//	[longitude, latitude, depthKm]
//
// Depth is optional. Upstream records are not always clean: coordinates may
// be missing, truncated, or strings such as "41.9" or "not-a-number". Numeric
// strings are accepted; anything that does not parse to a finite number is
// treated as absent.
//
// Magnitude is read from properties.mag, falling back to properties.magnitude
// when mag is absent or null. Other properties (place, time, eventId, ...) are
// passed through untouched.
//
// # Drop Policy
//
//   - Missing or non-finite longitude/latitude: the feature is dropped. It
//     contributes neither a point nor to the bounding box.
//   - Missing or non-numeric magnitude: the feature is kept and rendered as
//     magnitude 0. It is excluded from [MagnitudeStats].
//   - Missing or non-numeric depth: 0.
//
// # Severity Tiers
//
// Thresholds are evaluated from the highest down, so a magnitude exactly on a
// boundary takes the higher tier:
//
//	>= 6.0 severe | >= 5.0 high | >= 4.0 moderate | >= 2.0 low | else minimal
//
// # Marker Radius
//
//	radius = clamp(3 + max(mag, 0)^1.6, 3, 18)
//
// Negative and NaN magnitudes get the minimum radius.
//
// # Layer IDs
//
// Layer IDs are deterministic SHA-256 hashes over the drawn content of the
// classified points, magnitude and radius included, so replaying the same
// batch yields the same layer and any revision yields a new one. Each layer
// names the layer it replaces; see [NewLayer] and [Layer.Unchanged].
package domain
