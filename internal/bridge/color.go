package bridge

// Identifier and color-space conversions between the cloud wire formats and
// the host view.

import (
	"fmt"
	"math"
)

// MeshID derives a bulb's intra-home mesh address from its cloud deviceID and
// the home it belongs to. The quotient of the remainder by 1000 is rounded to
// the nearest integer before shifting into the high byte.
func MeshID(deviceID, homeID uint32) (uint16, error) {
	if homeID == 0 {
		return 0, fmt.Errorf("bridge: homeID must be non-zero for device %d", deviceID)
	}
	r := deviceID % homeID
	return uint16(r%1000 + (r+500)/1000*256), nil
}

// View-space color temperature bounds (mired-like scale the host uses).
const (
	viewTempMin = 140
	viewTempMax = 500
)

// ViewColorTemp converts wire temperature (0 warm .. 100 cool) to the
// 140..500 host scale.
func ViewColorTemp(cyncTemp uint8) int {
	return int(math.Round(float64(100-int(cyncTemp))*360.0/100.0)) + viewTempMin
}

// WireColorTemp converts a host color temperature back to wire space,
// clamping out-of-range input.
func WireColorTemp(view int) uint8 {
	if view < viewTempMin {
		view = viewTempMin
	}
	if view > viewTempMax {
		view = viewTempMax
	}
	ct := 100 - int(math.Round(float64(view-viewTempMin)*100.0/360.0))
	if ct < 0 {
		ct = 0
	}
	if ct > 100 {
		ct = 100
	}
	return uint8(ct)
}

// HSVToRGB converts hue (0..360), saturation (0..100) and value (0..100) to
// 8-bit RGB.
func HSVToRGB(hue, sat, val float64) (uint8, uint8, uint8) {
	s := sat / 100
	v := val / 100
	c := v * s
	h := math.Mod(hue, 360) / 60
	x := c * (1 - math.Abs(math.Mod(h, 2)-1))
	var r, g, b float64
	switch {
	case h < 1:
		r, g, b = c, x, 0
	case h < 2:
		r, g, b = x, c, 0
	case h < 3:
		r, g, b = 0, c, x
	case h < 4:
		r, g, b = 0, x, c
	case h < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := v - c
	return uint8(math.Round((r + m) * 255)), uint8(math.Round((g + m) * 255)), uint8(math.Round((b + m) * 255))
}

// RGBToHSV converts 8-bit RGB to hue (0..360), saturation (0..100) and
// value (0..100).
func RGBToHSV(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	var sat float64
	if max > 0 {
		sat = delta / max * 100
	}
	return hue, sat, max * 100
}
