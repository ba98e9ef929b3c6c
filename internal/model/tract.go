package model

import "github.com/twpayne/go-geom"

// Well-known SRIDs for tract geometries.
const (
	SRIDWGS84 = 4326
	SRIDNAD83 = 4269
)

// TractPolygon is a census tract boundary from the TIGER/Line shapefile.
type TractPolygon struct {
	GEOID      string // 11-digit state+county+tract
	TractID    string // normalized 6-digit tract code
	StateFIPS  string
	CountyFIPS string
	Name       string
	Geometry   *geom.MultiPolygon
	SRID       int
}
