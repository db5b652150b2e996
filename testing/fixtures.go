package testkit

import (
	"time"

	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/geofence"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// Hall is a service point in Bengaluru used across tests: default windows
// in Asia/Kolkata, 200 m radius, location checked.
func Hall(id string) servicepoint.ServicePoint {
	return servicepoint.ServicePoint{
		ID:           id,
		Name:         "Hall " + id,
		SecretRef:    "v1",
		Point:        geofence.Point{Latitude: 12.9716, Longitude: 77.5946},
		RadiusMeters: 200,
		TimeZone:     "Asia/Kolkata",
		Windows:      mealwindow.DefaultWindows(),
	}
}

// IssueBeacon signs a beacon payload for sp.
func IssueBeacon(sp servicepoint.ServicePoint, secret []byte) []byte {
	_, payload, err := beacon.Issue(beacon.Fields{
		ServicePointID: sp.ID,
		Name:           sp.Name,
		Code:           "QR-" + sp.ID,
		Latitude:       sp.Latitude,
		Longitude:      sp.Longitude,
		RadiusMeters:   sp.RadiusMeters,
	}, secret, time.Now())
	if err != nil {
		panic("issue beacon: " + err.Error())
	}
	return payload
}

// Near returns a claim meters away from sp's center, due north.
func Near(sp servicepoint.ServicePoint, meters float64) *geofence.Claim {
	return &geofence.Claim{Point: geofence.Offset(sp.Point, meters, 0)}
}

// LocalTime builds an instant on date at h:m:s in zone.
func LocalTime(zone string, year int, month time.Month, day, h, m, s int) time.Time {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		panic(err)
	}
	return time.Date(year, month, day, h, m, s, 0, loc)
}
