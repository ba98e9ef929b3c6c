// Package spatial assigns census tracts to incident points: strict
// containment first, then a small buffered intersection for points on or
// just outside a tract boundary.
package spatial

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/model"
)

// DefaultBufferDegrees is roughly 10 metres at Seattle's latitude.
const DefaultBufferDegrees = 0.0001

// ErrUnsupportedCRS is returned for tract geometries that are not in
// geographic NAD83 or WGS84 coordinates.
var ErrUnsupportedCRS = eris.New("spatial: unsupported coordinate reference system")

// Options configures a Matcher.
type Options struct {
	// BufferDegrees is the radius of the fallback disk. Zero or negative
	// disables the fallback pass.
	BufferDegrees float64
}

// Result is the tract assigned to a point. TractID is "" when neither pass
// matched.
type Result struct {
	TractID string
	GEOID   string
	Pass    model.MatchPass
}

type indexedTract struct {
	tract  *model.TractPolygon
	bounds *geom.Bounds
}

// Matcher answers point-in-tract queries. Tracts are held in ascending
// TractID order, and when a buffered point touches several tracts the
// smallest TractID wins.
type Matcher struct {
	tracts []indexedTract
	buffer float64
}

// SupportedSRID reports whether tracts in srid can be compared with
// longitude/latitude points directly. NAD83 and WGS84 differ by about a
// metre in the study area, well under the buffer radius, so NAD83 is used
// as-is. SRID 0 means the source did not say.
func SupportedSRID(srid int) bool {
	switch srid {
	case 0, model.SRIDWGS84, model.SRIDNAD83:
		return true
	default:
		return false
	}
}

// NewMatcher indexes tracts. Tracts without geometry are ignored.
func NewMatcher(tracts []model.TractPolygon, opts Options) (*Matcher, error) {
	m := &Matcher{buffer: opts.BufferDegrees}

	var noGeom int
	for i := range tracts {
		t := &tracts[i]
		if t.Geometry == nil || t.Geometry.NumPolygons() == 0 {
			noGeom++
			continue
		}
		if !SupportedSRID(t.SRID) || !SupportedSRID(t.Geometry.SRID()) {
			return nil, eris.Wrapf(ErrUnsupportedCRS, "tract %s has SRID %d", t.GEOID, t.SRID)
		}
		m.tracts = append(m.tracts, indexedTract{tract: t, bounds: t.Geometry.Bounds()})
	}

	slices.SortStableFunc(m.tracts, func(a, b indexedTract) int {
		return cmp.Or(
			cmp.Compare(a.tract.TractID, b.tract.TractID),
			cmp.Compare(a.tract.GEOID, b.tract.GEOID),
		)
	})

	if noGeom > 0 {
		zap.L().Debug("spatial: tracts without geometry ignored", zap.Int("count", noGeom))
	}
	return m, nil
}

// Len returns the number of indexed tracts.
func (m *Matcher) Len() int {
	return len(m.tracts)
}

// Match returns the tract containing (lon, lat).
func (m *Matcher) Match(lon, lat float64) Result {
	pt := geom.Coord{lon, lat}

	for _, it := range m.tracts {
		if !inBounds(it.bounds, pt, 0) {
			continue
		}
		if within(it.tract.Geometry, pt) {
			return Result{TractID: it.tract.TractID, GEOID: it.tract.GEOID, Pass: model.MatchWithin}
		}
	}

	if m.buffer <= 0 {
		return Result{}
	}
	for _, it := range m.tracts {
		if !inBounds(it.bounds, pt, m.buffer) {
			continue
		}
		if intersectsDisk(it.tract.Geometry, pt, m.buffer) {
			return Result{TractID: it.tract.TractID, GEOID: it.tract.GEOID, Pass: model.MatchBuffer}
		}
	}
	return Result{}
}

// MatchStats counts matches by pass.
type MatchStats struct {
	Within int
	Buffer int
}

// Total is the number of matched points.
func (s MatchStats) Total() int {
	return s.Within + s.Buffer
}

// MatchRecords assigns tracts to records[i] for every i in eligible. Records
// outside eligible are left unmatched.
func (m *Matcher) MatchRecords(records []model.CrimeRecord, eligible []int) MatchStats {
	var stats MatchStats
	for _, i := range eligible {
		rec := &records[i]
		if !rec.HasCoordinates() {
			continue
		}
		res := m.Match(*rec.Lon, *rec.Lat)
		rec.TractID = res.TractID
		rec.TractGEOID = res.GEOID
		rec.MatchPass = res.Pass
		switch res.Pass {
		case model.MatchWithin:
			stats.Within++
		case model.MatchBuffer:
			stats.Buffer++
		}
	}
	return stats
}

func inBounds(b *geom.Bounds, pt geom.Coord, pad float64) bool {
	return pt[0] >= b.Min(0)-pad && pt[0] <= b.Max(0)+pad &&
		pt[1] >= b.Min(1)-pad && pt[1] <= b.Max(1)+pad
}

// within reports whether pt lies in the interior of mp. Points on any ring,
// including hole rings, are not within.
func within(mp *geom.MultiPolygon, pt geom.Coord) bool {
	layout := mp.Layout()
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if xy.LocatePointInRing(layout, pt, poly.LinearRing(0).FlatCoords()) != location.Interior {
			continue
		}
		inside := true
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.LocatePointInRing(layout, pt, poly.LinearRing(j).FlatCoords()) != location.Exterior {
				inside = false
				break
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// intersectsDisk reports whether the closed disk of radius r around pt
// shares any point with mp: either pt is in the closed polygon or some ring
// passes within r of pt.
func intersectsDisk(mp *geom.MultiPolygon, pt geom.Coord, r float64) bool {
	layout := mp.Layout()
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			if xy.DistanceFromPointToLineString(layout, pt, poly.LinearRing(j).FlatCoords()) <= r {
				return true
			}
		}
		if !xy.IsPointInRing(layout, pt, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.LocatePointInRing(layout, pt, poly.LinearRing(j).FlatCoords()) == location.Interior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
