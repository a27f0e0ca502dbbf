package bridge

// Capability selection by deviceType. The cloud inventory reports a numeric
// device type per bulb; these range tables decide which characteristics the
// bulb exposes to the host.

type typeRange struct{ lo, hi uint8 }

var brightnessTypes = []typeRange{
	{1, 1}, {5, 11}, {13, 15}, {17, 37}, {48, 49}, {55, 56},
	{80, 83}, {85, 85}, {128, 154}, {156, 156}, {158, 165},
}

var colorTempTypes = []typeRange{
	{5, 8}, {10, 11}, {14, 15}, {19, 23}, {25, 26}, {28, 35},
	{80, 80}, {82, 83}, {85, 85}, {129, 133}, {135, 147},
	{153, 154}, {156, 156}, {158, 165},
}

var rgbTypes = []typeRange{
	{6, 8}, {21, 23}, {30, 35}, {131, 133}, {137, 143},
	{146, 147}, {153, 154}, {156, 156}, {158, 165},
}

func inRanges(ranges []typeRange, t uint8) bool {
	for _, r := range ranges {
		if t >= r.lo && t <= r.hi {
			return true
		}
	}
	return false
}

// Capabilities are the characteristics a bulb exposes. OnOff is universal.
type Capabilities struct {
	OnOff      bool
	Brightness bool
	ColorTemp  bool
	RGB        bool
}

// CapabilitiesFor returns the capability set for a device type.
func CapabilitiesFor(deviceType uint8) Capabilities {
	return Capabilities{
		OnOff:      true,
		Brightness: inRanges(brightnessTypes, deviceType),
		ColorTemp:  inRanges(colorTempTypes, deviceType),
		RGB:        inRanges(rgbTypes, deviceType),
	}
}
