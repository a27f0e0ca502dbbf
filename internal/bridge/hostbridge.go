package bridge

// HostBridge is the boundary to the home-automation host. The bridge pushes
// capability and state updates out; the host injects user intents back in via
// Bridge.UserIntent.
type HostBridge interface {
	// ExposeCapabilities is called once per bulb, on first import.
	ExposeCapabilities(deviceID uint32, name string, caps Capabilities)
	// NotifyState delivers a state change. Only the characteristics the bulb
	// supports are populated.
	NotifyState(deviceID uint32, update StateUpdate)
}

// StateUpdate is a partial bulb state delivered to the host. Nil fields are
// characteristics the bulb does not expose.
type StateUpdate struct {
	Connected  bool
	On         *bool
	Brightness *uint8
	ColorTemp  *int
	Hue        *float64
	Saturation *float64
}

// Intent is a user command from the host. Exactly one field is set.
type Intent struct {
	SetOn         *bool
	SetBrightness *uint8
	SetColorTemp  *int
	SetHue        *float64
	SetSaturation *float64
}
