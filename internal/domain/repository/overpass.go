package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carbonsense/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"
)

// FieldLocator finds farmland boundaries near a coordinate.
type FieldLocator interface {
	FieldsAround(ctx context.Context, p model.LatLon) ([]model.FieldBoundary, error)
}

type OverpassRepository struct {
	client       *overpass.Client
	timeout      time.Duration
	radiusMeters int
}

func NewOverpassRepository(endpoint string, timeout time.Duration, radiusMeters int) *OverpassRepository {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRepository{
		client:       &client,
		timeout:      timeout,
		radiusMeters: radiusMeters,
	}
}

func (r *OverpassRepository) FieldsAround(ctx context.Context, p model.LatLon) ([]model.FieldBoundary, error) {
	query := fmt.Sprintf(`
		[out:json];
		(
			way["landuse"="farmland"](around:%d,%f,%f);
			way["landuse"="meadow"](around:%d,%f,%f);
		);
		out body;
		>;
		out skel qt;
	`,
		r.radiusMeters, p.Lat, p.Lon,
		r.radiusMeters, p.Lat, p.Lon)

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute farmland query: %w", err)
	}
	return convertToFields(result), nil
}

// executeQuery runs the query in the background; the client itself takes no context.
func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result overpass.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.client.Query(query)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query cancelled: %w", ctx.Err())
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", o.err)
		}
		return &o.result, nil
	}
}

// convertToFields turns farmland ways into closed rings. Ways with fewer than three
// resolved nodes are dropped.
func convertToFields(result *overpass.Result) []model.FieldBoundary {
	fields := make([]model.FieldBoundary, 0, len(result.Ways))
	for _, way := range result.Ways {
		if way == nil {
			continue
		}
		ring := make(orb.Ring, 0, len(way.Nodes)+1)
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			ring = append(ring, orb.Point{node.Lon, node.Lat})
		}
		if ring.Closed() {
			ring = ring[:len(ring)-1]
		}
		if len(ring) < 3 {
			continue
		}
		ring = append(ring, ring[0])

		bound := ring.Bound()
		if way.Bounds != nil {
			bound = orb.Bound{
				Min: orb.Point{way.Bounds.Min.Lon, way.Bounds.Min.Lat},
				Max: orb.Point{way.Bounds.Max.Lon, way.Bounds.Max.Lat},
			}
		}

		fields = append(fields, model.FieldBoundary{
			ID:    way.ID,
			Tags:  way.Tags,
			Ring:  ring,
			Bound: bound,
		})
	}
	return fields
}
