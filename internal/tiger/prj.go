package tiger

import (
	"os"
	"strings"

	"github.com/sells-group/crime-census/internal/model"
)

// SRIDUnknown marks a coordinate reference system that could not be
// identified.
const SRIDUnknown = -1

// SRIDFromWKT identifies the geographic CRS named by an ESRI .prj WKT
// string. Projected systems and unrecognised datums return SRIDUnknown.
func SRIDFromWKT(wkt string) int {
	s := strings.ToUpper(wkt)
	switch {
	case strings.HasPrefix(strings.TrimSpace(s), "PROJCS"):
		return SRIDUnknown
	case strings.Contains(s, "NORTH_AMERICAN_1983"), strings.Contains(s, "NAD83"), strings.Contains(s, "NAD_1983"):
		return model.SRIDNAD83
	case strings.Contains(s, "WGS_1984"), strings.Contains(s, "WGS 84"), strings.Contains(s, "WGS84"):
		return model.SRIDWGS84
	default:
		return SRIDUnknown
	}
}

// ReadSRID reads the .prj sidecar next to shpPath. A missing sidecar
// returns 0 (unspecified).
func ReadSRID(shpPath string) (int, error) {
	prj := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return SRIDFromWKT(string(data)), nil
}
