//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"cync-go-home/internal/bridge"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/cync_305419896/light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Name         string   `json:"name"`
}

// haLight is the discovery payload for a JSON-schema light.
type haLight struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	Schema              string   `json:"schema"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Brightness          bool     `json:"brightness,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	MinMireds           int      `json:"min_mireds,omitempty"`
	MaxMireds           int      `json:"max_mireds,omitempty"`
	Device              haDevice `json:"device"`
}

// topicName sanitizes a display name into a topic segment, falling back to
// the deviceID for unnamed bulbs.
func topicName(name string, deviceID uint32) string {
	if name == "" {
		return fmt.Sprintf("cync_%d", deviceID)
	}
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(name))
	return sanitized
}

// buildLightDiscovery generates the HA discovery message for a bulb. Color
// modes follow the capability flags derived from the device type.
func buildLightDiscovery(deviceID uint32, name string, caps bridge.Capabilities, prefix, topic string) discoveryMsg {
	nodeID := fmt.Sprintf("cync_%d", deviceID)
	if name == "" {
		name = nodeID
	}

	var modes []string
	if caps.ColorTemp {
		modes = append(modes, "color_temp")
	}
	if caps.RGB {
		modes = append(modes, "hs")
	}
	if len(modes) == 0 && caps.Brightness {
		modes = append(modes, "brightness")
	}
	if len(modes) == 0 {
		modes = append(modes, "onoff")
	}

	payload := haLight{
		Name:                name,
		UniqueID:            nodeID + "_light",
		Schema:              "json",
		StateTopic:          prefix + "/" + topic,
		CommandTopic:        prefix + "/" + topic + "/set",
		AvailabilityTopic:   prefix + "/" + topic + "/availability",
		Brightness:          caps.Brightness,
		SupportedColorModes: modes,
		Device: haDevice{
			Identifiers:  []string{nodeID},
			Manufacturer: "GE Cync",
			Name:         name,
		},
	}
	if caps.Brightness {
		payload.BrightnessScale = 100
	}
	if caps.ColorTemp {
		payload.MinMireds = 140
		payload.MaxMireds = 500
	}

	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/light/%s/light/config", nodeID),
		Payload: mustJSON(payload),
	}
}
