package cloud

// Outbound payload builders. All multi-byte integers are big-endian; the
// device firmware additionally expects a one-byte additive checksum over the
// state fields of every SET_* inner body.

import "encoding/binary"

// Checksum base constants: each is the fixed header contribution the firmware
// sums before the variable state fields.
const (
	setStateChecksumBase     = 496
	setStatusChecksumBase    = 429
	setColorTempChecksumBase = 469
)

const statusEnvelopeSize = 18

// BuildAuth builds the AUTH payload:
// 0x03, userID(4 BE), 0x00, len(authorize), authorize, 0x0000, 0xB4.
func BuildAuth(userID uint32, authorize string) []byte {
	buf := make([]byte, len(authorize)+10)
	buf[0] = 0x03
	binary.BigEndian.PutUint32(buf[1:5], userID)
	buf[5] = 0x00
	buf[6] = uint8(len(authorize))
	copy(buf[7:], authorize)
	// buf[7+n], buf[8+n] stay 0x0000
	buf[len(buf)-1] = 0xB4
	return buf
}

// BuildStatusRequest wraps an inner body in the 18-byte STATUS request
// envelope addressed to a switch.
func BuildStatusRequest(switchID uint32, seq uint16, subtype uint8, inner []byte) []byte {
	buf := make([]byte, statusEnvelopeSize+len(inner))
	binary.BigEndian.PutUint32(buf[0:4], switchID)
	binary.BigEndian.PutUint16(buf[4:6], seq)
	buf[7] = 0x7E
	buf[12] = 0xF8
	buf[13] = subtype
	buf[14] = uint8(len(inner))
	copy(buf[18:], inner)
	return buf
}

// BuildConnectedProbe builds the 7-byte CONNECTED reachability probe payload.
func BuildConnectedProbe(switchID uint32, seq uint16) []byte {
	buf := make([]byte, 7)
	binary.BigEndian.PutUint32(buf[0:4], switchID)
	binary.BigEndian.PutUint16(buf[4:6], seq)
	return buf
}

// BuildStatusAck builds the 7-byte ack for a server-initiated STATUS packet.
func BuildStatusAck(switchID uint32, responseID uint16) []byte {
	buf := make([]byte, 7)
	binary.BigEndian.PutUint32(buf[0:4], switchID)
	binary.BigEndian.PutUint16(buf[4:6], responseID)
	return buf
}

// BuildGetStatusPaginated builds the inner body that requests the full state
// of every mesh node under a switch.
func BuildGetStatusPaginated() []byte {
	return []byte{0xFF, 0xFF, 0x00, 0x00, 0x56, 0x7E}
}

// innerHeader fills the 8-byte prefix shared by all SET_* inner bodies:
// zeros, meshID(2 BE) at offset 2, subtype at offset 5.
func innerHeader(buf []byte, meshID uint16, subtype uint8) {
	binary.BigEndian.PutUint16(buf[2:4], meshID)
	buf[5] = subtype
}

// BuildSetState builds the 16-byte SET_STATE inner carrying the full bulb
// state atomically: on, brightness, white temperature and RGB.
func BuildSetState(meshID uint16, on bool, brightness, cyncTemp, r, g, b uint8) []byte {
	buf := make([]byte, 16)
	innerHeader(buf, meshID, SubtypeSetState)
	onByte := uint8(0)
	if on {
		onByte = 1
	}
	buf[8] = onByte
	buf[9] = brightness
	buf[10] = cyncTemp
	buf[11] = r
	buf[12] = g
	buf[13] = b
	sum := setStateChecksumBase + int(meshID) + int(onByte) + int(brightness) + int(cyncTemp) + int(r) + int(g) + int(b)
	buf[14] = uint8(sum % 256)
	buf[15] = 0x7E
	return buf
}

// BuildSetStatus builds the 13-byte SET_STATUS inner (on/off only).
func BuildSetStatus(meshID uint16, on bool) []byte {
	buf := make([]byte, 13)
	innerHeader(buf, meshID, SubtypeSetStatus)
	onByte := uint8(0)
	if on {
		onByte = 1
	}
	buf[8] = onByte
	buf[11] = uint8((setStatusChecksumBase + int(meshID) + int(onByte)) % 256)
	buf[12] = 0x7E
	return buf
}

// BuildSetColorTemp builds the 12-byte SET_COLOR_TEMP inner. cyncTemp is in
// wire space, 0 (warm) to 100 (cool).
func BuildSetColorTemp(meshID uint16, cyncTemp uint8) []byte {
	buf := make([]byte, 12)
	innerHeader(buf, meshID, SubtypeSetColorTemp)
	buf[8] = 0x05
	buf[9] = cyncTemp
	buf[10] = uint8((setColorTempChecksumBase + int(meshID) + int(cyncTemp)) % 256)
	buf[11] = 0x7E
	return buf
}
