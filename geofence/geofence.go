// Package geofence checks that a claimed position lies within a service
// point's circular boundary.
package geofence

import (
	"math"

	"github.com/PaulFidika/mealkit/reject"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Claim is a device-reported position. Accuracy is informational.
type Claim struct {
	Point
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Valid reports whether the coordinate is in range.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Validate accepts claim when its distance to center is at most radiusMeters.
// A missing claim is LocationRequired. The comparison is made at millimetre
// precision so a point placed exactly on the boundary is accepted; the
// reported distance is rounded to whole meters.
func Validate(claim *Claim, center Point, radiusMeters float64) (float64, error) {
	if claim == nil {
		return 0, reject.New(reject.LocationRequired)
	}
	if !claim.Valid() {
		return 0, reject.New(reject.MalformedPayload, "field", "geo_location")
	}
	d := Distance(claim.Point, center)
	if math.Round(d*1000)/1000 > radiusMeters {
		return d, reject.New(reject.GeofenceViolation,
			"distance", math.Round(d),
			"allowed", radiusMeters,
		)
	}
	return d, nil
}

// Offset returns the point reached by travelling meters from p along bearing
// (degrees clockwise from north). Used to build fixtures at exact distances.
func Offset(p Point, meters, bearing float64) Point {
	ang := meters / EarthRadiusMeters
	brg := bearing * math.Pi / 180
	lat1 := p.Latitude * math.Pi / 180
	lon1 := p.Longitude * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Latitude: lat2 * 180 / math.Pi, Longitude: lon2 * 180 / math.Pi}
}
