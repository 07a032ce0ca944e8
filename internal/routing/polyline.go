package routing

import "github.com/meera/waymate/internal/model"

// DecodePolyline decodes a Google encoded polyline (precision 1e-5) into an
// ordered coordinate list. Malformed trailing bytes truncate the result
// rather than erroring: a partial route is still rejected downstream when it
// has fewer than two points.
func DecodePolyline(encoded string) []model.Location {
	var coordinates []model.Location
	index, lat, lng := 0, 0, 0

	readDelta := func() (int, bool) {
		shift, result := 0, 0
		for {
			if index >= len(encoded) {
				return 0, false
			}
			value := int(encoded[index]) - 63
			index++
			result |= (value & 0x1F) << shift
			shift += 5
			if value < 0x20 {
				break
			}
		}
		if result&1 != 0 {
			return ^(result >> 1), true
		}
		return result >> 1, true
	}

	for index < len(encoded) {
		dLat, ok := readDelta()
		if !ok {
			break
		}
		dLng, ok := readDelta()
		if !ok {
			break
		}
		lat += dLat
		lng += dLng
		coordinates = append(coordinates, model.Location{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}
	return coordinates
}
