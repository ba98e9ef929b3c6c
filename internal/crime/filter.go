package crime

import (
	"math"

	"github.com/sells-group/crime-census/internal/model"
)

// Bounds is an open latitude/longitude box plus the unknown-coordinate
// sentinel.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Sentinel       float64
}

// SeattleBounds is the metro-area box used for SPD data.
func SeattleBounds() Bounds {
	return Bounds{
		MinLat:   47.0,
		MaxLat:   48.0,
		MinLon:   -123.0,
		MaxLon:   -121.0,
		Sentinel: -1.0,
	}
}

// Contains reports whether (lat, lon) is finite, not the sentinel, and
// strictly inside the box.
func (b Bounds) Contains(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	if lat == b.Sentinel || lon == b.Sentinel {
		return false
	}
	return lat > b.MinLat && lat < b.MaxLat && lon > b.MinLon && lon < b.MaxLon
}

// Filter returns the indices of records eligible for spatial matching.
// records is not modified.
func Filter(records []model.CrimeRecord, b Bounds) []int {
	var eligible []int
	for i := range records {
		rec := &records[i]
		if !rec.HasCoordinates() {
			continue
		}
		if b.Contains(*rec.Lat, *rec.Lon) {
			eligible = append(eligible, i)
		}
	}
	return eligible
}
