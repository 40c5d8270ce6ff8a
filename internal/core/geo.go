package core

import (
	"carbonsense/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const (
	sqMetersPerAcre = 4046.8564224
	metersPerMile   = 1609.344
	feetPerMile     = 5280
)

// PolygonAcres is the spherical area of a closed ring.
func PolygonAcres(ring orb.Ring) float64 {
	if len(ring) < 4 {
		return 0
	}
	return geo.Area(ring) / sqMetersPerAcre
}

// FieldDimensions returns the north-south length and east-west width of b in miles.
func FieldDimensions(b orb.Bound) (float64, float64) {
	midLat := (b.Bottom() + b.Top()) / 2
	length := geo.DistanceHaversine(orb.Point{b.Left(), b.Bottom()}, orb.Point{b.Left(), b.Top()})
	width := geo.DistanceHaversine(orb.Point{b.Left(), midLat}, orb.Point{b.Right(), midLat})
	return length / metersPerMile, width / metersPerMile
}

// ContainingField picks the smallest boundary that contains p.
func ContainingField(p model.LatLon, fields []model.FieldBoundary) (model.FieldBoundary, bool) {
	pt := p.Point()
	var best model.FieldBoundary
	found := false
	for _, f := range fields {
		if !f.Bound.Contains(pt) || !planar.RingContains(f.Ring, pt) {
			continue
		}
		if !found || f.Acres < best.Acres {
			best, found = f, true
		}
	}
	return best, found
}
