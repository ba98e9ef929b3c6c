package tiger

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/geoid"
	"github.com/sells-group/crime-census/internal/model"
)

// fieldAliases lists DBF column names by vintage: 2020 files use STATEFP,
// 2010 files STATEFP10, some releases STATEFP20.
var fieldAliases = map[string][]string{
	"state":  {"statefp", "statefp20", "statefp10"},
	"county": {"countyfp", "countyfp20", "countyfp10"},
	"tract":  {"tractce", "tractce20", "tractce10"},
	"geoid":  {"geoid", "geoid20", "geoid10"},
	"name":   {"name", "name20", "name10"},
}

// ParseTracts reads a tract shapefile and returns the tracts in countyFIPS
// (all tracts when countyFIPS is empty). The CRS comes from the .prj
// sidecar. Records without polygon geometry are skipped.
func ParseTracts(shpPath, countyFIPS string) ([]model.TractPolygon, error) {
	log := zap.L().With(zap.String("component", "tiger.parse"), zap.String("path", shpPath))

	srid, err := ReadSRID(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: read prj for %s", shpPath)
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	pos := make(map[string]int, len(fieldAliases))
	for key, aliases := range fieldAliases {
		pos[key] = -1
		for _, a := range aliases {
			if i, ok := fieldIdx[a]; ok {
				pos[key] = i
				break
			}
		}
	}
	if pos["geoid"] < 0 && pos["tract"] < 0 {
		return nil, eris.Errorf("tiger: %s has neither GEOID nor TRACTCE field", shpPath)
	}

	attr := func(key string) string {
		i := pos[key]
		if i < 0 {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}

	wantCounty := ""
	if countyFIPS != "" {
		wantCounty = geoid.NormalizeCounty(countyFIPS)
	}

	var tracts []model.TractPolygon
	var skipped, otherCounty int
	for reader.Next() {
		_, shape := reader.Shape()

		t := model.TractPolygon{
			GEOID:      attr("geoid"),
			StateFIPS:  attr("state"),
			CountyFIPS: attr("county"),
			Name:       attr("name"),
			SRID:       srid,
		}
		if t.CountyFIPS == "" && len(t.GEOID) == 11 {
			t.CountyFIPS = t.GEOID[2:5]
		}
		if t.StateFIPS == "" && len(t.GEOID) == 11 {
			t.StateFIPS = t.GEOID[:2]
		}
		if wantCounty != "" && geoid.NormalizeCounty(t.CountyFIPS) != wantCounty {
			otherCounty++
			continue
		}

		t.TractID = geoid.NormalizeTract(attr("tract"))
		if t.TractID == "" {
			t.TractID = geoid.NormalizeTract(t.GEOID)
		}
		if t.GEOID == "" && t.StateFIPS != "" && t.CountyFIPS != "" {
			t.GEOID = geoid.Build(t.StateFIPS, t.CountyFIPS, t.TractID)
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok || t.TractID == "" {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly, srid)
		if mp == nil {
			skipped++
			continue
		}
		t.Geometry = mp
		tracts = append(tracts, t)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		log.Debug("skipped shapefile records", zap.Int("skipped", skipped))
	}
	if len(tracts) == 0 && wantCounty != "" {
		return nil, eris.Errorf("tiger: no tracts for county %s in %s (%d in other counties)",
			wantCounty, shpPath, otherCounty)
	}
	log.Info("parsed tracts",
		zap.Int("tracts", len(tracts)),
		zap.Int("other_county", otherCounty),
		zap.Int("srid", srid),
	)
	return tracts, nil
}
