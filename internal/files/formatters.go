package files

import (
	"fmt"
	"math"
	"strings"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatFileSize renders size with two decimals in base 1024 units.
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(size)/math.Pow(1024, float64(i)), sizeUnits[i])
}

// FormatCoordinates renders a point as "12.345°N, 67.890°W".
func FormatCoordinates(lat, lon float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.3f°%s, %.3f°%s", math.Abs(lat), ns, math.Abs(lon), ew)
}

// FormatTilesetID drops the account prefix of a full tileset id.
func FormatTilesetID(tilesetID string) string {
	if _, short, ok := strings.Cut(tilesetID, "."); ok {
		return short
	}
	return tilesetID
}

// MetadataSummary is the one-line description shown in file listings.
func MetadataSummary(m *geodata.Metadata) string {
	return m.Summary()
}
