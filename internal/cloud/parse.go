package cloud

// Inbound payload decoding. Packets decode into tagged event values; slicing
// that does not fit the frame drops the single record and keeps the rest of
// the stream alive.

import (
	"encoding/binary"
	"fmt"
)

// DeviceStatus is one mesh node's state as reported by the cloud.
type DeviceStatus struct {
	MeshID     uint16
	On         bool
	Brightness uint8
	CyncTemp   uint8
	R, G, B    uint8
	RGBActive  bool
	HasColor   bool // temp and RGB fields both present (paginated STATUS only)
}

// StatusHeader is the addressing prefix of STATUS-family payloads.
type StatusHeader struct {
	SwitchID   uint32
	ResponseID uint16
}

// rgbActiveMarker in the paginated temp byte means the node is in RGB mode.
const rgbActiveMarker = 254

// ParseStatusHeader extracts switchID and responseID from a STATUS, SYNC,
// STATUS_SYNC or CONNECTED payload.
func ParseStatusHeader(payload []byte) (StatusHeader, error) {
	if len(payload) < 6 {
		return StatusHeader{}, fmt.Errorf("cloud: status header too short: %d bytes", len(payload))
	}
	return StatusHeader{
		SwitchID:   binary.BigEndian.Uint32(payload[0:4]),
		ResponseID: binary.BigEndian.Uint16(payload[4:6]),
	}, nil
}

// ParseAuthResult reports whether an AUTH response payload indicates success.
func ParseAuthResult(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 0x00 && payload[1] == 0x00
}

// ParseStatus decodes a type-7 STATUS payload. Short payloads (acks and other
// non-status traffic) yield no records.
func ParseStatus(payload []byte) []DeviceStatus {
	if len(payload) < 25 {
		return nil
	}
	switch payload[13] {
	case SubtypeGetStatus:
		return parseSingleStatus(payload)
	case SubtypeGetStatusPaginated:
		return parsePaginatedStatus(payload)
	}
	return nil
}

// parseSingleStatus decodes the 0xDB single-device status fragment:
// meshID at 21, state at 27, brightness at 28.
func parseSingleStatus(payload []byte) []DeviceStatus {
	if len(payload) < 29 {
		return nil
	}
	st := DeviceStatus{
		MeshID: uint16(payload[21]),
		On:     payload[27] > 0,
	}
	if st.On {
		st.Brightness = payload[28]
	}
	return []DeviceStatus{st}
}

// parsePaginatedStatus decodes consecutive 24-byte records starting at
// offset 22 of a 0x52 response. Record layout: meshID@0, on@8,
// brightness@12, temp@16 (254 = RGB mode active), r@20, g@21, b@22.
func parsePaginatedStatus(payload []byte) []DeviceStatus {
	var out []DeviceStatus
	for off := 22; off+24 <= len(payload); off += 24 {
		rec := payload[off : off+24]
		st := DeviceStatus{
			MeshID:    uint16(rec[0]),
			On:        rec[8] > 0,
			CyncTemp:  rec[16],
			R:         rec[20],
			G:         rec[21],
			B:         rec[22],
			RGBActive: rec[16] == rgbActiveMarker,
			HasColor:  true,
		}
		if st.On {
			st.Brightness = rec[12]
		}
		out = append(out, st)
	}
	return out
}

// ParseSync decodes a type-4 mesh broadcast: 19-byte records after the 7-byte
// header, each meshID@3, on@4, brightness@5, temp@6. HasColor stays false, so
// Bulb.Apply does not apply the temp of a SYNC record.
func ParseSync(payload []byte) []DeviceStatus {
	var out []DeviceStatus
	for off := 7; off+19 <= len(payload); off += 19 {
		rec := payload[off : off+19]
		st := DeviceStatus{
			MeshID:   uint16(rec[3]),
			On:       rec[4] > 0,
			CyncTemp: rec[6],
		}
		if st.On {
			st.Brightness = rec[5]
		}
		out = append(out, st)
	}
	return out
}

// ParseStatusSync decodes a type-8 single-device delta: meshID@21, on@27,
// brightness@28. Shorter payloads carry no state.
func ParseStatusSync(payload []byte) []DeviceStatus {
	if len(payload) < 33 {
		return nil
	}
	st := DeviceStatus{
		MeshID: uint16(payload[21]),
		On:     payload[27] > 0,
	}
	if st.On {
		st.Brightness = payload[28]
	}
	return []DeviceStatus{st}
}
