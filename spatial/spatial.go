package spatial

import (
	"math"
	"sort"

	"tidbyt.dev/transit/model"
)

const (
	EarthRadiusKm = 6371

	// Length of one degree of latitude
	kmPerDegree = EarthRadiusKm * math.Pi / 180

	DefaultCellKm = 1.0
)

// Great-circle distance in km between two WGS84 coordinates.
func Haversine(aLat, aLon, bLat, bLon float64) float64 {
	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * EarthRadiusKm
}

type cell struct {
	row int32
	col int32
}

type Neighbor struct {
	Stop       model.Stop
	DistanceKm float64
}

// Fixed size lat/lon grid over stop coordinates. Immutable once
// built.
type Index struct {
	cellDeg float64
	rows    int32
	cols    int32
	stops   []model.Stop
	cells   map[cell][]int32
}

// Builds an index with cells of roughly cellKm by cellKm (measured
// along latitude). A non-positive cellKm selects DefaultCellKm.
func New(stops []model.Stop, cellKm float64) *Index {
	if cellKm <= 0 {
		cellKm = DefaultCellKm
	}

	// Columns tile the full circle exactly, so that wrapping at
	// the antimeridian lands on the right cell.
	cols := int32(math.Round(360 / (cellKm / kmPerDegree)))
	if cols < 1 {
		cols = 1
	}
	cellDeg := 360 / float64(cols)

	idx := &Index{
		cellDeg: cellDeg,
		rows:    int32(math.Ceil(180 / cellDeg)),
		cols:    cols,
		stops:   append([]model.Stop{}, stops...),
		cells:   map[cell][]int32{},
	}

	for i, stop := range idx.stops {
		c := cell{idx.row(stop.Lat), idx.col(stop.Lon)}
		idx.cells[c] = append(idx.cells[c], int32(i))
	}

	return idx
}

func (idx *Index) row(lat float64) int32 {
	r := math.Floor((lat + 90) / idx.cellDeg)
	if r < 0 {
		return 0
	}
	if r >= float64(idx.rows) {
		return idx.rows - 1
	}
	return int32(r)
}

func (idx *Index) col(lon float64) int32 {
	c := int32(math.Floor((lon + 180) / idx.cellDeg))
	c %= idx.cols
	if c < 0 {
		c += idx.cols
	}
	return c
}

func (idx *Index) Len() int {
	return len(idx.stops)
}

// Returns stops within radiusKm of (lat, lon), closest first with
// ties broken by stop ID. If limit > 0, at most limit stops are
// returned.
func (idx *Index) FindNearby(lat, lon, radiusKm float64, limit int) []Neighbor {
	result := []Neighbor{}
	if radiusKm < 0 || len(idx.stops) == 0 {
		return result
	}

	visit := func(members []int32) {
		for _, i := range members {
			stop := idx.stops[i]
			d := Haversine(lat, lon, stop.Lat, stop.Lon)
			if d <= radiusKm {
				result = append(result, Neighbor{Stop: stop, DistanceKm: d})
			}
		}
	}

	// Half a meridian covers every row
	dLat := math.Min(radiusKm/kmPerDegree, 180)
	minRow := idx.row(lat - dLat)
	maxRow := idx.row(lat + dLat)

	// Longitude span per row, widened by 1/cos(lat) at the
	// row's edge closest to a pole.
	type span struct {
		row      int32
		from, to int32
		all      bool
	}
	spans := []span{}
	total := 0
	for r := minRow; r <= maxRow; r++ {
		south := float64(r)*idx.cellDeg - 90
		north := south + idx.cellDeg
		edge := math.Min(math.Max(math.Abs(south), math.Abs(north)), 90)

		cos := math.Cos(edge * math.Pi / 180)
		if cos < 1e-9 || dLat/cos >= 180 {
			spans = append(spans, span{row: r, all: true})
			total += int(idx.cols)
			continue
		}
		dLon := dLat / cos
		from := int32(math.Floor((lon - dLon + 180) / idx.cellDeg))
		to := int32(math.Floor((lon + dLon + 180) / idx.cellDeg))
		if to-from+1 >= idx.cols {
			spans = append(spans, span{row: r, all: true})
			total += int(idx.cols)
			continue
		}
		spans = append(spans, span{row: r, from: from, to: to})
		total += int(to - from + 1)
	}

	if total > len(idx.cells) {
		// Cheaper to inspect every populated cell
		for c, members := range idx.cells {
			if c.row >= minRow && c.row <= maxRow {
				visit(members)
			}
		}
	} else {
		for _, s := range spans {
			if s.all {
				for c := int32(0); c < idx.cols; c++ {
					visit(idx.cells[cell{s.row, c}])
				}
				continue
			}
			for c := s.from; c <= s.to; c++ {
				wrapped := c % idx.cols
				if wrapped < 0 {
					wrapped += idx.cols
				}
				visit(idx.cells[cell{s.row, wrapped}])
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceKm != result[j].DistanceKm {
			return result[i].DistanceKm < result[j].DistanceKm
		}
		return result[i].Stop.ID < result[j].Stop.ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result
}
