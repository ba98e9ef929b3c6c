package tiger

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// EncodeWKB converts a tract geometry to little-endian EWKB carrying its
// SRID. Returns nil, nil for a nil geometry.
func EncodeWKB(mp *geom.MultiPolygon) ([]byte, error) {
	if mp == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: encode WKB")
	}
	return data, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile outer rings run clockwise and holes counter-clockwise; each hole
// is attached to the outer ring that contains it.
func polygonToMultiPolygon(p *shp.Polygon, srid int) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells []*geom.Polygon
	var holes []*geom.LinearRing
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("tiger: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, ring)
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("tiger: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		shells = append(shells, poly)
	}

	for _, hole := range holes {
		owner := -1
		first := hole.Coord(0)
		for k, shell := range shells {
			if xy.IsPointInRing(geom.XY, first, shell.LinearRing(0).FlatCoords()) {
				owner = k
				break
			}
		}
		if owner < 0 {
			// An unowned counter-clockwise ring is an outer ring written
			// with the wrong orientation.
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(hole); err == nil {
				shells = append(shells, poly)
			}
			continue
		}
		if err := shells[owner].Push(hole); err != nil {
			zap.L().Debug("tiger: skipping malformed hole", zap.Error(err))
		}
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for _, poly := range shells {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("tiger: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
