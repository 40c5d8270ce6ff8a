package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion identifies the column layout produced by FeatureBuilder.
const SchemaVersion = "carbonsense-features/v1"

const (
	colSpeed         = "speed_mph"
	colLoad          = "engine_load_pct"
	colWidth         = "implement_width_ft"
	colAcres         = "field_acres"
	colWeather       = "weather_factor"
	colSpeedSquared  = "speed_squared"
	colSpeedLoad     = "speed_load_interaction"
	colImplementLoad = "implement_load"
	prefixSpeedBand  = "speed_efficiency_"
	prefixLoadBand   = "load_efficiency_"
	prefixOperation  = "operation_type_"
	prefixSoil       = "soil_type_"
	prefixTerrain    = "terrain_type_"
)

var numericColumns = []string{
	colSpeed, colLoad, colWidth, colAcres, colWeather,
	colSpeedSquared, colSpeedLoad, colImplementLoad,
}

type band struct {
	upper float64
	label string
}

// Bands are right-inclusive: a value falls in (previous upper, upper].
var (
	speedBands = []band{{5, "very_slow"}, {7, "slow"}, {9, "optimal"}, {11, "fast"}, {15, "very_fast"}}
	loadBands  = []band{{60, "underload"}, {75, "efficient"}, {85, "optimal"}, {95, "high"}, {100, "overload"}}
)

// bandOf returns the index of the band containing v, or -1.
func bandOf(bands []band, v float64) int {
	lower := 0.0
	for i, b := range bands {
		if v > lower && v <= b.upper {
			return i
		}
		lower = b.upper
	}
	return -1
}

// FeatureBuilder turns an operating point into the model's feature vector.
type FeatureBuilder struct{}

func NewFeatureBuilder() *FeatureBuilder {
	return &FeatureBuilder{}
}

func (b *FeatureBuilder) Build(p model.OperatingPoint) (model.FeatureVector, error) {
	if err := p.ValidateNumeric(); err != nil {
		return model.FeatureVector{}, err
	}

	v := model.FeatureVector{
		Columns: make([]string, 0, 32),
		Values:  make([]float64, 0, 32),
	}
	add := func(col string, val float64) {
		v.Columns = append(v.Columns, col)
		v.Values = append(v.Values, val)
	}

	add(colSpeed, p.SpeedMPH)
	add(colLoad, p.EngineLoadPct)
	add(colWidth, p.ImplementWidthFt)
	add(colAcres, p.FieldAcres)
	add(colWeather, p.WeatherFactor)
	add(colSpeedSquared, p.SpeedMPH*p.SpeedMPH)
	add(colSpeedLoad, p.SpeedMPH*p.EngineLoadPct/100)
	add(colImplementLoad, p.ImplementWidthFt*p.EngineLoadPct/100)

	speedIdx := bandOf(speedBands, p.SpeedMPH)
	for i, sb := range speedBands {
		add(prefixSpeedBand+sb.label, indicator(i == speedIdx))
	}
	loadIdx := bandOf(loadBands, p.EngineLoadPct)
	for i, lb := range loadBands {
		add(prefixLoadBand+lb.label, indicator(i == loadIdx))
	}

	if op := strings.TrimSpace(p.OperationType); op != "" {
		add(prefixOperation+op, 1)
	}
	// Unknown closed-set values encode as all zeros.
	if p.SoilType != "" {
		for _, s := range model.SoilTypes {
			add(prefixSoil+string(s), indicator(s == p.SoilType))
		}
	}
	if p.TerrainType != "" {
		for _, t := range model.TerrainTypes {
			add(prefixTerrain+string(t), indicator(t == p.TerrainType))
		}
	}

	return v, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Schema is the frozen, ordered column list used at training and inference.
type Schema struct {
	Version string
	Columns []string
	index   map[string]int
}

func NewSchema(version string, columns []string) (Schema, error) {
	if version != SchemaVersion {
		return Schema{}, fmt.Errorf("%w: schema version %q, expected %q", model.ErrSchemaMismatch, version, SchemaVersion)
	}
	if len(columns) == 0 {
		return Schema{}, fmt.Errorf("%w: empty column list", model.ErrSchemaMismatch)
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate column %q", model.ErrSchemaMismatch, c)
		}
		index[c] = i
	}
	for _, c := range numericColumns {
		if _, ok := index[c]; !ok {
			return Schema{}, fmt.Errorf("%w: missing column %q", model.ErrSchemaMismatch, c)
		}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return Schema{Version: version, Columns: cols, index: index}, nil
}

// FitSchema freezes the union of columns seen across vectors in canonical order.
func FitSchema(vectors []model.FeatureVector) (Schema, error) {
	seen := make(map[string]struct{})
	var cols []string
	for _, v := range vectors {
		for _, c := range v.Columns {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		gi, oi := columnRank(cols[i])
		gj, oj := columnRank(cols[j])
		if gi != gj {
			return gi < gj
		}
		if oi != oj {
			return oi < oj
		}
		return cols[i] < cols[j]
	})
	return NewSchema(SchemaVersion, cols)
}

// Align projects v onto the schema: missing columns are zero, extra columns are dropped.
func (s Schema) Align(v model.FeatureVector) []float64 {
	out := make([]float64, len(s.Columns))
	for i, c := range v.Columns {
		if j, ok := s.Index(c); ok {
			out[j] = v.Values[i]
		}
	}
	return out
}

// Index returns the position of column in aligned rows.
func (s Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// columnRank returns the group and position of a column in canonical order.
func columnRank(col string) (int, int) {
	for i, c := range numericColumns {
		if c == col {
			return 0, i
		}
	}
	switch {
	case strings.HasPrefix(col, prefixSpeedBand):
		return 1, bandPosition(speedBands, strings.TrimPrefix(col, prefixSpeedBand))
	case strings.HasPrefix(col, prefixLoadBand):
		return 2, bandPosition(loadBands, strings.TrimPrefix(col, prefixLoadBand))
	case strings.HasPrefix(col, prefixOperation):
		return 3, 0
	case strings.HasPrefix(col, prefixSoil):
		for i, s := range model.SoilTypes {
			if prefixSoil+string(s) == col {
				return 4, i
			}
		}
		return 4, len(model.SoilTypes)
	case strings.HasPrefix(col, prefixTerrain):
		for i, t := range model.TerrainTypes {
			if prefixTerrain+string(t) == col {
				return 5, i
			}
		}
		return 5, len(model.TerrainTypes)
	}
	return 6, 0
}

func bandPosition(bands []band, label string) int {
	for i, b := range bands {
		if b.label == label {
			return i
		}
	}
	return len(bands)
}
