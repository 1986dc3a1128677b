package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
)

// Earth radii used for great-circle distances. These match the figures
// the rest of the pipeline was calibrated against.
const (
	earthRadiusMi = 3958.8
	earthRadiusNM = 3440.1
)

// DistanceMi returns the great-circle distance between two points in
// statute miles.
func DistanceMi(lat1, lon1, lat2, lon2 float64) float64 {
	return centralAngle(lat1, lon1, lat2, lon2) * earthRadiusMi
}

// DistanceNM returns the great-circle distance between two points in
// nautical miles.
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	return centralAngle(lat1, lon1, lat2, lon2) * earthRadiusNM
}

func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians()
}

// LatDM renders a latitude in APRS degree-minute notation, e.g. "4256.43N".
// Output is always 8 characters.
func LatDM(lat float64) string {
	hemi := byte('N')
	if lat < 0 {
		hemi = 'S'
		lat = -lat
	}
	if lat > 90 {
		lat = 90
	}
	deg := int(lat)
	min := fmt.Sprintf("%05.2f", (lat-float64(deg))*60)
	// 59.999' rounds up to "60.00"; carry it into the degrees.
	if min[0] == '6' {
		min = "00.00"
		deg++
	}
	return fmt.Sprintf("%02d%s%c", deg, min, hemi)
}

// LonDM renders a longitude in APRS degree-minute notation, e.g. "07843.93W".
// Output is always 9 characters.
func LonDM(lon float64) string {
	hemi := byte('E')
	if lon < 0 {
		hemi = 'W'
		lon = -lon
	}
	if lon > 180 {
		lon = 180
	}
	deg := int(lon)
	min := fmt.Sprintf("%05.2f", (lon-float64(deg))*60)
	if min[0] == '6' {
		min = "00.00"
		deg++
	}
	return fmt.Sprintf("%03d%s%c", deg, min, hemi)
}
