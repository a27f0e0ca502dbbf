package cloud

// Cync cloud TCP protocol: outer frame codec and packet type constants.
// Every packet on the wire is type_byte(1) + length(4 BE) + payload.

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types (high nibble of the type byte).
const (
	PacketAuth       uint8 = 1  // login request / status response
	PacketSync       uint8 = 4  // mesh state broadcast, multi-record
	PacketStatus     uint8 = 7  // subtype-tagged request/response envelope
	PacketStatusSync uint8 = 8  // single-device state delta
	PacketConnected  uint8 = 10 // reachability probe / answer
	PacketPing       uint8 = 13 // empty-payload keep-alive
)

// The low nibble of every outbound type byte carries the protocol version
// the server requires. Bit 0x08 is set on response frames.
const (
	frameVersion  uint8 = 0x03
	frameRespBit  uint8 = 0x08
	frameHdrSize        = 5
)

// STATUS envelope subtypes.
const (
	SubtypeGetStatusPaginated uint8 = 0x52
	SubtypeGetStatus          uint8 = 0xDB
	SubtypeSetStatus          uint8 = 0xD0
	SubtypeSetBrightness      uint8 = 0xD2 // legacy, never emitted
	SubtypeSetColorTemp       uint8 = 0xE2
	SubtypeSetState           uint8 = 0xF0
)

// Packet is a decoded inbound frame.
type Packet struct {
	Type       uint8
	IsResponse bool
	Payload    []byte
}

// EncodeFrame builds a complete outbound frame for the given packet type.
func EncodeFrame(pktType uint8, payload []byte) []byte {
	frame := make([]byte, frameHdrSize+len(payload))
	frame[0] = pktType<<4 | frameVersion
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	return frame
}

// DecodeFrame parses a single frame from data, which must hold the complete
// packet. ReadFrame does its own decoding from the stream and does not call
// it.
func DecodeFrame(data []byte) (Packet, error) {
	if len(data) < frameHdrSize {
		return Packet{}, fmt.Errorf("cloud: frame too short: %d bytes", len(data))
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if uint64(len(data)) < uint64(frameHdrSize)+uint64(length) {
		return Packet{}, fmt.Errorf("cloud: frame truncated: need %d payload bytes, have %d", length, len(data)-frameHdrSize)
	}
	p := Packet{
		Type:       data[0] >> 4,
		IsResponse: data[0]&frameRespBit != 0,
	}
	if length > 0 {
		p.Payload = make([]byte, length)
		copy(p.Payload, data[frameHdrSize:frameHdrSize+int(length)])
	}
	return p, nil
}

// ReadFrame reads exactly one frame from r: 5-byte header, then the payload
// the header announces.
func ReadFrame(r io.Reader) (Packet, error) {
	var hdr [frameHdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	length := binary.BigEndian.Uint32(hdr[1:5])
	p := Packet{
		Type:       hdr[0] >> 4,
		IsResponse: hdr[0]&frameRespBit != 0,
	}
	if length > 0 {
		p.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return Packet{}, err
		}
	}
	return p, nil
}

// packetName returns a human-readable name for a packet type.
func packetName(t uint8) string {
	switch t {
	case PacketAuth:
		return "AUTH"
	case PacketSync:
		return "SYNC"
	case PacketStatus:
		return "STATUS"
	case PacketStatusSync:
		return "STATUS_SYNC"
	case PacketConnected:
		return "CONNECTED"
	case PacketPing:
		return "PING"
	default:
		return fmt.Sprintf("0x%02X", t)
	}
}
