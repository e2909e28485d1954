package tools

import (
	"math"
	"sort"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// DefaultRestaurant is the kitchen every order is dispatched from.
var DefaultRestaurant = Point{Lat: 39.7990, Lon: -89.6440}

// Driver is a courier on the roster.
type Driver struct {
	ID        string
	Name      string
	Vehicle   string
	Rating    float64
	Phone     string
	Location  Point
	Available bool
}

// DriverMatch is a driver with their distance from the pickup point.
type DriverMatch struct {
	Driver     Driver
	DistanceKm float64
}

// DefaultDrivers places a small roster around the restaurant.
func DefaultDrivers(origin Point) []Driver {
	at := func(dLat, dLon float64) Point { return Point{Lat: origin.Lat + dLat, Lon: origin.Lon + dLon} }
	return []Driver{
		{ID: "drv-michael", Name: "Michael", Vehicle: "Toyota Corolla", Rating: 4.8, Phone: "+15551234567", Location: at(0.005, 0.004), Available: true},
		{ID: "drv-alice", Name: "Alice", Vehicle: "Honda Civic", Rating: 4.9, Phone: "+15551234568", Location: at(0.01, 0.01), Available: true},
		{ID: "drv-bob", Name: "Bob", Vehicle: "Ford Focus", Rating: 4.6, Phone: "+15551234569", Location: at(0.05, 0.02), Available: true},
		{ID: "drv-dana", Name: "Dana", Vehicle: "Kia Soul", Rating: 4.7, Phone: "+15551234570", Location: at(0.002, 0.001), Available: false},
	}
}

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance.
func DistanceKm(a, b Point) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// nearby returns available drivers within radiusKm of p, nearest first.
func nearby(drivers []Driver, p Point, radiusKm float64) []DriverMatch {
	var out []DriverMatch
	for _, d := range drivers {
		if !d.Available {
			continue
		}
		if dist := DistanceKm(p, d.Location); dist <= radiusKm {
			out = append(out, DriverMatch{Driver: d, DistanceKm: dist})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}
