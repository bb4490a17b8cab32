package geo

import (
	"math"

	"github.com/example/dispatch-client/internal/models"
)

// Bounds is an axis aligned lat/lon box.
type Bounds struct {
	SouthWest models.Coord `json:"south_west"`
	NorthEast models.Coord `json:"north_east"`
}

// BoundsOf returns the smallest box containing every point, or false for no points.
func BoundsOf(points ...models.Coord) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{SouthWest: points[0], NorthEast: points[0]}
	for _, p := range points[1:] {
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lon = math.Min(b.SouthWest.Lon, p.Lon)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lon = math.Max(b.NorthEast.Lon, p.Lon)
	}
	return b, true
}

// Pad grows the box by ratio of its span on every side. A degenerate box
// (single point) is grown by minSpan degrees instead.
func (b Bounds) Pad(ratio, minSpan float64) Bounds {
	dLat := (b.NorthEast.Lat - b.SouthWest.Lat) * ratio
	dLon := (b.NorthEast.Lon - b.SouthWest.Lon) * ratio
	if dLat < minSpan {
		dLat = minSpan
	}
	if dLon < minSpan {
		dLon = minSpan
	}
	return Bounds{
		SouthWest: models.Coord{Lat: b.SouthWest.Lat - dLat, Lon: b.SouthWest.Lon - dLon},
		NorthEast: models.Coord{Lat: b.NorthEast.Lat + dLat, Lon: b.NorthEast.Lon + dLon},
	}
}

func (b Bounds) Contains(p models.Coord) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lon >= b.SouthWest.Lon && p.Lon <= b.NorthEast.Lon
}

// PathLength sums the haversine distance along a polyline, in meters.
func PathLength(path []models.Coord) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Haversine(path[i-1].Lat, path[i-1].Lon, path[i].Lat, path[i].Lon)
	}
	return total
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
