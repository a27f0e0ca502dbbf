package bridge

import (
	"fmt"
	"log/slog"

	"cync-go-home/internal/cloud"
)

// Bridge ties the cloud session to the bulb registry and the host adapters:
// inbound status flows into bulbs and out to the hosts, user intents flow
// from the hosts into SET_STATE frames.
type Bridge struct {
	logger     *slog.Logger
	session    *cloud.Session
	registry   *Registry
	events     *EventBus
	reconciler *Reconciler
	dispatcher *cloud.Dispatcher

	hosts []HostBridge
}

// New wires a bridge over a session. Hosts are attached with AddHost before
// Start.
func New(session *cloud.Session, events *EventBus, logger *slog.Logger) *Bridge {
	b := &Bridge{
		logger:   logger.With("component", "bridge"),
		session:  session,
		registry: NewRegistry(logger),
		events:   events,
	}
	b.reconciler = NewReconciler(b.registry, session, events, logger)
	b.dispatcher = cloud.NewDispatcher(session, b, logger)
	session.OnStateChange(b.handleSessionState)
	return b
}

// Registry returns the device registry.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Events returns the event bus.
func (b *Bridge) Events() *EventBus {
	return b.events
}

// AddHost attaches a host adapter. Must be called before ImportInventory so
// the host sees capability exposure.
func (b *Bridge) AddHost(h HostBridge) {
	b.hosts = append(b.hosts, h)
}

// Start connects the session and begins the probe cycle.
func (b *Bridge) Start() {
	b.session.Start()
	b.reconciler.Start()
}

// Stop halts probing and tears the session down. No host callbacks are made
// after Stop returns.
func (b *Bridge) Stop() {
	b.reconciler.Stop()
	b.session.Shutdown()
}

// ImportInventory upserts the REST inventory into the registry, exposes new
// bulbs to the hosts, and probes them. Returns the deviceIDs now known so
// the caller can retire stale accessories.
func (b *Bridge) ImportInventory(homes []Home) ([]uint32, error) {
	var known []uint32
	for _, home := range homes {
		created, ids, err := b.registry.Import(home, b)
		if err != nil {
			return nil, err
		}
		known = append(known, ids...)
		for _, bulb := range created {
			for _, h := range b.hosts {
				b.callHost(func() { h.ExposeCapabilities(bulb.DeviceID, bulb.Name(), bulb.Caps) })
			}
			b.reconciler.Probe(bulb)
		}
	}
	b.events.Emit(Event{Type: EventInventory, Data: map[string]any{"devices": len(known)}})
	return known, nil
}

// RemoveBulb drops a bulb after the host reports its accessory removed.
func (b *Bridge) RemoveBulb(deviceID uint32) {
	b.registry.Remove(deviceID)
}

// UserIntent applies a host command to a bulb. Intents on characteristics
// the device type lacks are rejected locally without emitting a frame.
func (b *Bridge) UserIntent(deviceID uint32, intent Intent) error {
	bulb := b.registry.FindByDevice(deviceID)
	if bulb == nil {
		return fmt.Errorf("bridge: unknown device %d", deviceID)
	}
	switch {
	case intent.SetOn != nil:
		return bulb.SetOn(*intent.SetOn)
	case intent.SetBrightness != nil:
		return bulb.SetBrightness(*intent.SetBrightness)
	case intent.SetColorTemp != nil:
		return bulb.SetColorTemp(*intent.SetColorTemp)
	case intent.SetHue != nil:
		return bulb.SetHue(*intent.SetHue)
	case intent.SetSaturation != nil:
		return bulb.SetSaturation(*intent.SetSaturation)
	}
	return fmt.Errorf("bridge: empty intent for device %d", deviceID)
}

// sendState implements commander: one full-state SET_STATE frame per setter
// call.
func (b *Bridge) sendState(switchID uint32, meshID uint16, on bool, brightness, cyncTemp, r, g, bl uint8) {
	inner := cloud.BuildSetState(meshID, on, brightness, cyncTemp, r, g, bl)
	b.session.Send(cloud.PacketStatus, cloud.BuildStatusRequest(switchID, b.session.NextSeq(), cloud.SubtypeSetState, inner))
}

// HandleStatus applies cloud-reported state records to their bulbs and
// notifies the hosts. Records for unknown mesh addresses are dropped.
func (b *Bridge) HandleStatus(switchID uint32, statuses []cloud.DeviceStatus) {
	for _, st := range statuses {
		bulb := b.registry.ResolveStatus(switchID, st.MeshID)
		if bulb == nil {
			b.logger.Debug("status for unknown mesh", "switch", switchID, "mesh", st.MeshID)
			continue
		}
		update := bulb.Apply(st)
		b.notifyState(bulb, update)
		b.events.Emit(Event{Type: EventBulbState, Data: map[string]any{
			"device_id": bulb.DeviceID,
			"name":      bulb.Name(),
			"state":     bulb.Snapshot(),
		}})
	}
}

// HandleConnected marks a switch reachable and requests a full status for it
// in the same dispatch turn.
func (b *Bridge) HandleConnected(switchID uint32) {
	bulb := b.registry.FindBySwitch(switchID)
	if bulb == nil {
		return
	}
	if bulb.setConnected(true) {
		b.events.Emit(Event{Type: EventBulbOnline, Data: map[string]any{
			"device_id": bulb.DeviceID,
			"name":      bulb.Name(),
		}})
	}
	inner := cloud.BuildGetStatusPaginated()
	b.session.Send(cloud.PacketStatus, cloud.BuildStatusRequest(switchID, b.session.NextSeq(), cloud.SubtypeGetStatusPaginated, inner))
}

func (b *Bridge) handleSessionState(st cloud.State) {
	b.events.Emit(Event{Type: EventSessionState, Data: map[string]any{"state": st.String()}})
	if st == cloud.StateConnected {
		b.reconciler.ProbeAll()
	}
}

func (b *Bridge) notifyState(bulb *Bulb, update StateUpdate) {
	for _, h := range b.hosts {
		b.callHost(func() { h.NotifyState(bulb.DeviceID, update) })
	}
}

// callHost shields the dispatch path from a misbehaving host adapter.
func (b *Bridge) callHost(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("host adapter panic", "panic", r)
		}
	}()
	fn()
}
