package store

import "time"

// Home is a cached cloud home container.
type Home struct {
	ID         uint32    `json:"id"`
	ProductID  uint32    `json:"product_id"`
	Name       string    `json:"name,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

// Bulb is a cached inventory entry. The cache lets the daemon expose
// accessories when the REST inventory fetch fails at startup.
type Bulb struct {
	DeviceID    uint32    `json:"device_id"`
	SwitchID    uint32    `json:"switch_id"`
	HomeID      uint32    `json:"home_id"`
	DeviceType  uint8     `json:"device_type"`
	DisplayName string    `json:"display_name,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}
