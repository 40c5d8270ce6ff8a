package core

import (
	"testing"

	"carbonsense/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestPolygonAcres(t *testing.T) {
	assert.InDelta(t, 234.6, PolygonAcres(model.RingOf(squareField(40, -90))), 0.5)
	assert.Zero(t, PolygonAcres(model.RingOf(squareField(40, -90)[:2])))

	ring := squareField(40, -90)
	reversed := []model.LatLon{ring[3], ring[2], ring[1], ring[0]}
	assert.InDelta(t, PolygonAcres(model.RingOf(ring)), PolygonAcres(model.RingOf(reversed)), 1e-6)
}

func TestFieldDimensions(t *testing.T) {
	length, width := FieldDimensions(model.RingOf(squareField(40, -90)).Bound())
	assert.InDelta(t, 0.6917, length, 1e-3)
	assert.InDelta(t, 0.5298, width, 1e-3)

	length, _ = FieldDimensions(model.RingOf([]model.LatLon{{Lat: 40, Lon: -90}, {Lat: 41, Lon: -90}, {Lat: 41, Lon: -89.9}}).Bound())
	assert.InDelta(t, 69.17, length, 0.05)
}

func field(id int64, points []model.LatLon) model.FieldBoundary {
	ring := model.RingOf(points)
	return model.FieldBoundary{ID: id, Ring: ring, Bound: ring.Bound(), Acres: PolygonAcres(ring)}
}

func TestContainingFieldPrefersSmallest(t *testing.T) {
	big := field(1, []model.LatLon{{Lat: 40, Lon: -90}, {Lat: 40, Lon: -89.98}, {Lat: 40.02, Lon: -89.98}, {Lat: 40.02, Lon: -90}})
	small := field(2, squareField(40, -90))

	got, ok := ContainingField(model.LatLon{Lat: 40.005, Lon: -89.995}, []model.FieldBoundary{big, small})
	assert.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	got, ok = ContainingField(model.LatLon{Lat: 40.015, Lon: -89.985}, []model.FieldBoundary{big, small})
	assert.True(t, ok)
	assert.Equal(t, int64(1), got.ID)

	_, ok = ContainingField(model.LatLon{Lat: 41, Lon: -89}, []model.FieldBoundary{big, small})
	assert.False(t, ok)
}

func TestContainingFieldTriangle(t *testing.T) {
	tri := field(3, []model.LatLon{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 0}})

	_, ok := ContainingField(model.LatLon{Lat: 0.2, Lon: 0.2}, []model.FieldBoundary{tri})
	assert.True(t, ok)
	_, ok = ContainingField(model.LatLon{Lat: 0.8, Lon: 0.8}, []model.FieldBoundary{tri})
	assert.False(t, ok)
}
