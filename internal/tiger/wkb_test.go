package tiger

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/crime-census/internal/model"
)

func TestEncodeWKB_RoundTrip(t *testing.T) {
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(-122.35, 47.60, 0.01)}))
	mp := polygonToMultiPolygon(&poly, model.SRIDWGS84)
	require.NotNil(t, mp)

	data, err := EncodeWKB(mp)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	decoded, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, model.SRIDWGS84, decoded.SRID())
	assert.Equal(t, mp.FlatCoords(), decoded.FlatCoords())
}

func TestEncodeWKB_Nil(t *testing.T) {
	data, err := EncodeWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestPolygonToMultiPolygon_MultiPart(t *testing.T) {
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(0, 0, 1), square(5, 5, 1)}))
	mp := polygonToMultiPolygon(&poly, 0)
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestPolygonToMultiPolygon_Degenerate(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil, 0))
	assert.Nil(t, polygonToMultiPolygon(&shp.Polygon{}, 0))

	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}))
	assert.Nil(t, polygonToMultiPolygon(&poly, 0))
}

func TestPolygonToMultiPolygon_CounterClockwiseShell(t *testing.T) {
	ccw := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ccw}))
	mp := polygonToMultiPolygon(&poly, 0)
	require.NotNil(t, mp)
	assert.Equal(t, 1, mp.NumPolygons())
}
