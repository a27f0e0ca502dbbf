package cloud

import (
	"encoding/binary"
	"log/slog"
)

// Handler consumes decoded device events from the dispatcher.
type Handler interface {
	// HandleStatus delivers state records reported under a switch.
	HandleStatus(switchID uint32, statuses []DeviceStatus)
	// HandleConnected reports a positive reachability answer for a switch.
	HandleConnected(switchID uint32)
}

// Dispatcher routes decoded inbound packets by type. Server-initiated STATUS
// packets are acked before their records reach the handler, so the ack is on
// the wire ahead of anything the handler emits. Unknown types are dropped.
type Dispatcher struct {
	session *Session
	handler Handler
	logger  *slog.Logger
}

// NewDispatcher wires a dispatcher into the session's packet stream.
func NewDispatcher(session *Session, handler Handler, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		session: session,
		handler: handler,
		logger:  logger.With("component", "dispatcher"),
	}
	session.OnPacket(d.dispatch)
	return d
}

func (d *Dispatcher) dispatch(pkt Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "type", packetName(pkt.Type), "panic", r)
		}
	}()

	switch pkt.Type {
	case PacketStatus:
		hdr, err := ParseStatusHeader(pkt.Payload)
		if err != nil {
			d.logger.Warn("malformed STATUS", "err", err)
			return
		}
		if !pkt.IsResponse {
			d.session.Send(PacketStatus, BuildStatusAck(hdr.SwitchID, hdr.ResponseID))
		}
		if statuses := ParseStatus(pkt.Payload); len(statuses) > 0 {
			d.handler.HandleStatus(hdr.SwitchID, statuses)
		}

	case PacketSync:
		hdr, err := ParseStatusHeader(pkt.Payload)
		if err != nil {
			d.logger.Warn("malformed SYNC", "err", err)
			return
		}
		if statuses := ParseSync(pkt.Payload); len(statuses) > 0 {
			d.handler.HandleStatus(hdr.SwitchID, statuses)
		}

	case PacketStatusSync:
		hdr, err := ParseStatusHeader(pkt.Payload)
		if err != nil {
			d.logger.Warn("malformed STATUS_SYNC", "err", err)
			return
		}
		if statuses := ParseStatusSync(pkt.Payload); len(statuses) > 0 {
			d.handler.HandleStatus(hdr.SwitchID, statuses)
		}

	case PacketConnected:
		if len(pkt.Payload) < 4 {
			return
		}
		d.handler.HandleConnected(binary.BigEndian.Uint32(pkt.Payload[0:4]))

	default:
		d.logger.Debug("dropping packet", "type", packetName(pkt.Type))
	}
}
