package model

import "github.com/paulmach/orb"

// FieldBoundary is a farmland polygon resolved from OpenStreetMap.
type FieldBoundary struct {
	ID    int64             `json:"id"`
	Tags  map[string]string `json:"tags"`
	Ring  orb.Ring          `json:"ring"`
	Bound orb.Bound         `json:"bound"`
	Acres float64           `json:"acres"`
}

// Point returns p in orb's lon/lat order.
func (p LatLon) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// RingOf returns points as a closed ring.
func RingOf(points []LatLon) orb.Ring {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, p.Point())
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}
