package geo

import (
	"fmt"
	"strings"
)

// Maidenhead precision steps in degrees (longitude, latitude) for each
// character pair: field, square, subsquare, extended square.
var locatorSteps = [4][2]float64{
	{20, 10},
	{2, 1},
	{2.0 / 24, 1.0 / 24},
	{2.0 / 240, 1.0 / 240},
}

// FromLocator converts a Maidenhead grid locator (2, 4, 6 or 8 characters)
// to the midpoint of the square it names.
func FromLocator(locator string) (Point, error) {
	loc := strings.ToUpper(strings.TrimSpace(locator))
	if len(loc) < 2 || len(loc) > 8 || len(loc)%2 != 0 {
		return Point{}, fmt.Errorf("invalid locator length %q", locator)
	}

	lon, lat := -180.0, -90.0
	pairs := len(loc) / 2
	for i := 0; i < pairs; i++ {
		c1, c2 := loc[2*i], loc[2*i+1]
		var x, y int
		switch i {
		case 0:
			if c1 < 'A' || c1 > 'R' || c2 < 'A' || c2 > 'R' {
				return Point{}, fmt.Errorf("invalid locator field %q", locator)
			}
			x, y = int(c1-'A'), int(c2-'A')
		case 1, 3:
			if c1 < '0' || c1 > '9' || c2 < '0' || c2 > '9' {
				return Point{}, fmt.Errorf("invalid locator square %q", locator)
			}
			x, y = int(c1-'0'), int(c2-'0')
		case 2:
			if c1 < 'A' || c1 > 'X' || c2 < 'A' || c2 > 'X' {
				return Point{}, fmt.Errorf("invalid locator subsquare %q", locator)
			}
			x, y = int(c1-'A'), int(c2-'A')
		}
		lon += float64(x) * locatorSteps[i][0]
		lat += float64(y) * locatorSteps[i][1]
	}

	last := locatorSteps[pairs-1]
	return Point{Lat: lat + last[1]/2, Lon: lon + last[0]/2}, nil
}

// ToLocator returns the 6-character locator containing p.
func ToLocator(p Point) string {
	lon := p.Lon + 180
	lat := p.Lat + 90
	if lon >= 360 {
		lon = 359.9999
	}
	if lat >= 180 {
		lat = 179.9999
	}

	var b [6]byte
	b[0] = byte('A' + int(lon/20))
	b[1] = byte('A' + int(lat/10))
	lon -= float64(int(lon/20)) * 20
	lat -= float64(int(lat/10)) * 10
	b[2] = byte('0' + int(lon/2))
	b[3] = byte('0' + int(lat))
	lon -= float64(int(lon/2)) * 2
	lat -= float64(int(lat))
	b[4] = byte('a' + int(lon*12))
	b[5] = byte('a' + int(lat*24))
	return string(b[:])
}
