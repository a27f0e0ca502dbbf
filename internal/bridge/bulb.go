package bridge

import (
	"errors"
	"sync"

	"cync-go-home/internal/cloud"
)

// ErrNotSupported is returned for user intents a bulb's device type cannot
// perform.
var ErrNotSupported = errors.New("characteristic not supported by device type")

// commander issues outbound control frames on behalf of a bulb.
type commander interface {
	sendState(switchID uint32, meshID uint16, on bool, brightness, cyncTemp, r, g, b uint8)
}

// Bulb is the per-device state: identity, capability flags, and the last
// known cloud state. Every setter sends one SET_STATE frame carrying the full
// current state; the cloud's echoed status remains authoritative.
type Bulb struct {
	DeviceID   uint32
	SwitchID   uint32
	MeshID     uint16
	HomeID     uint32
	DeviceType uint8
	Caps       Capabilities

	cmd commander

	mu          sync.Mutex
	displayName string
	connected   bool
	on          bool
	brightness  uint8 // 0..100
	cyncTemp    uint8 // wire space, 0 = warm
	r, g, b     uint8
	hue, sat    float64
}

// BulbState is a read-only snapshot for the API and event stream.
type BulbState struct {
	DeviceID   uint32  `json:"device_id"`
	SwitchID   uint32  `json:"switch_id"`
	MeshID     uint16  `json:"mesh_id"`
	Name       string  `json:"name"`
	Connected  bool    `json:"connected"`
	On         bool    `json:"on"`
	Brightness uint8   `json:"brightness"`
	ColorTemp  int     `json:"color_temp,omitempty"`
	Hue        float64 `json:"hue,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
}

// Name returns the display name from the inventory.
func (b *Bulb) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.displayName
}

// Connected reports reachability as of the last probe cycle.
func (b *Bulb) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// setConnected updates reachability, reporting whether it changed.
func (b *Bulb) setConnected(connected bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected == connected {
		return false
	}
	b.connected = connected
	return true
}

// Snapshot returns the current state.
func (b *Bulb) Snapshot() BulbState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BulbState{
		DeviceID:   b.DeviceID,
		SwitchID:   b.SwitchID,
		MeshID:     b.MeshID,
		Name:       b.displayName,
		Connected:  b.connected,
		On:         b.on,
		Brightness: b.brightness,
	}
	if b.Caps.ColorTemp {
		st.ColorTemp = ViewColorTemp(b.cyncTemp)
	}
	if b.Caps.RGB {
		st.Hue = b.hue
		st.Saturation = b.sat
	}
	return st
}

// SetOn turns the bulb on or off.
func (b *Bulb) SetOn(on bool) error {
	b.mu.Lock()
	b.on = on
	b.sendStateLocked()
	b.mu.Unlock()
	return nil
}

// SetBrightness sets brightness 0..100.
func (b *Bulb) SetBrightness(v uint8) error {
	if !b.Caps.Brightness {
		return ErrNotSupported
	}
	if v > 100 {
		v = 100
	}
	b.mu.Lock()
	b.brightness = v
	if v > 0 {
		b.on = true
	}
	b.sendStateLocked()
	b.mu.Unlock()
	return nil
}

// SetColorTemp sets the white temperature in view space (140..500).
func (b *Bulb) SetColorTemp(view int) error {
	if !b.Caps.ColorTemp {
		return ErrNotSupported
	}
	b.mu.Lock()
	b.cyncTemp = WireColorTemp(view)
	b.sendStateLocked()
	b.mu.Unlock()
	return nil
}

// SetHue sets the hue in degrees and reprojects RGB from the current
// hue/saturation/brightness.
func (b *Bulb) SetHue(hue float64) error {
	if !b.Caps.RGB {
		return ErrNotSupported
	}
	b.mu.Lock()
	b.hue = hue
	b.r, b.g, b.b = HSVToRGB(b.hue, b.sat, float64(b.brightness))
	b.sendStateLocked()
	b.mu.Unlock()
	return nil
}

// SetSaturation sets the saturation 0..100 and reprojects RGB.
func (b *Bulb) SetSaturation(sat float64) error {
	if !b.Caps.RGB {
		return ErrNotSupported
	}
	b.mu.Lock()
	b.sat = sat
	b.r, b.g, b.b = HSVToRGB(b.hue, b.sat, float64(b.brightness))
	b.sendStateLocked()
	b.mu.Unlock()
	return nil
}

// sendStateLocked emits one SET_STATE frame with the complete current state.
// Caller holds mu.
func (b *Bulb) sendStateLocked() {
	if b.cmd == nil {
		return
	}
	b.cmd.sendState(b.SwitchID, b.MeshID, b.on, b.brightness, b.cyncTemp, b.r, b.g, b.b)
}

// Apply overwrites local state with a cloud-reported status and returns the
// host notification for it. Applying the same status twice is a no-op state
// wise and yields the same update.
func (b *Bulb) Apply(st cloud.DeviceStatus) StateUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.on = st.On
	b.brightness = st.Brightness
	if !b.on {
		b.brightness = 0
	}
	if st.HasColor {
		// 254 in the temp byte flags RGB mode, not a real temperature.
		if !st.RGBActive {
			b.cyncTemp = st.CyncTemp
		}
		if b.Caps.RGB {
			b.r, b.g, b.b = st.R, st.G, st.B
			b.hue, b.sat, _ = RGBToHSV(b.r, b.g, b.b)
		}
	}

	update := StateUpdate{Connected: b.connected}
	on := b.on
	update.On = &on
	if b.Caps.Brightness {
		bri := b.brightness
		update.Brightness = &bri
	}
	if b.Caps.ColorTemp {
		ct := ViewColorTemp(b.cyncTemp)
		update.ColorTemp = &ct
	}
	if b.Caps.RGB {
		hue, sat := b.hue, b.sat
		update.Hue = &hue
		update.Saturation = &sat
	}
	return update
}
