package bridge

import "testing"

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		deviceType uint8
		brightness bool
		colorTemp  bool
		rgb        bool
	}{
		{1, true, false, false},    // plug-style dimmer, no white tuning
		{4, false, false, false},   // on/off only
		{5, true, true, false},     // tunable white
		{6, true, true, true},      // full color
		{8, true, true, true},
		{9, true, false, false},
		{10, true, true, false},
		{13, true, false, false},
		{16, false, false, false},
		{21, true, true, true},
		{24, true, false, false},
		{30, true, true, true},
		{37, true, false, false},
		{38, false, false, false},
		{48, true, false, false},
		{55, true, false, false},
		{57, false, false, false},
		{80, true, true, false},
		{81, true, false, false},
		{85, true, true, false},
		{128, true, false, false},
		{131, true, true, true},
		{134, true, false, false},
		{137, true, true, true},
		{146, true, true, true},
		{148, true, false, false},
		{155, false, false, false},
		{156, true, true, true},
		{157, false, false, false},
		{158, true, true, true},
		{165, true, true, true},
		{166, false, false, false},
	}
	for _, tt := range tests {
		caps := CapabilitiesFor(tt.deviceType)
		if !caps.OnOff {
			t.Errorf("type %d: OnOff must always be true", tt.deviceType)
		}
		if caps.Brightness != tt.brightness {
			t.Errorf("type %d: Brightness = %v, want %v", tt.deviceType, caps.Brightness, tt.brightness)
		}
		if caps.ColorTemp != tt.colorTemp {
			t.Errorf("type %d: ColorTemp = %v, want %v", tt.deviceType, caps.ColorTemp, tt.colorTemp)
		}
		if caps.RGB != tt.rgb {
			t.Errorf("type %d: RGB = %v, want %v", tt.deviceType, caps.RGB, tt.rgb)
		}
	}
}

func TestRGBImpliesBrightness(t *testing.T) {
	// Every RGB-capable type in the supported population is also
	// brightness-capable; a violation would break HSV projection.
	for dt := 0; dt <= 255; dt++ {
		caps := CapabilitiesFor(uint8(dt))
		if caps.RGB && !caps.Brightness {
			t.Errorf("type %d: RGB without Brightness", dt)
		}
	}
}
