package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"cync-go-home/internal/cloud"
)

// fakeHost records HostBridge callbacks.
type fakeHost struct {
	mu      sync.Mutex
	exposed map[uint32]Capabilities
	updates []StateUpdate
	panics  bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{exposed: make(map[uint32]Capabilities)}
}

func (h *fakeHost) ExposeCapabilities(deviceID uint32, name string, caps Capabilities) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exposed[deviceID] = caps
}

func (h *fakeHost) NotifyState(deviceID uint32, update StateUpdate) {
	h.mu.Lock()
	h.updates = append(h.updates, update)
	h.mu.Unlock()
	if h.panics {
		panic("host adapter failure")
	}
}

func (h *fakeHost) updateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

// newTestBridge runs a bridge against a fake cloud on a pipe. The fake
// accepts the login and forwards every other frame to the returned channel.
func newTestBridge(t *testing.T) (*Bridge, *fakeHost, chan cloud.Packet) {
	t.Helper()

	client, server := net.Pipe()
	session := cloud.NewSession(cloud.Config{Addr: "test", UserID: 1, Authorize: "x"}, testLogger())
	used := false
	session.SetDialer(func(ctx context.Context) (net.Conn, error) {
		if used {
			return nil, errors.New("single-connection test dialer")
		}
		used = true
		return client, nil
	})

	received := make(chan cloud.Packet, 64)
	go func() {
		for {
			pkt, err := cloud.ReadFrame(server)
			if err != nil {
				return
			}
			if pkt.Type == cloud.PacketAuth {
				server.Write(cloud.EncodeFrame(cloud.PacketAuth, []byte{0x00, 0x00}))
				continue
			}
			received <- pkt
		}
	}()

	b := New(session, NewEventBus(testLogger()), testLogger())
	host := newFakeHost()
	b.AddHost(host)

	b.Start()
	t.Cleanup(func() {
		b.Stop()
		server.Close()
	})

	deadline := time.Now().Add(2 * time.Second)
	for session.State() != cloud.StateConnected {
		if time.Now().After(deadline) {
			t.Fatal("session did not connect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b, host, received
}

func waitPacket(t *testing.T, ch chan cloud.Packet) cloud.Packet {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("no packet within 2s")
		return cloud.Packet{}
	}
}

func TestBridgeImportExposesAndProbes(t *testing.T) {
	b, host, received := newTestBridge(t)

	known, err := b.ImportInventory([]Home{testHome()})
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != 2 {
		t.Fatalf("known devices: got %d, want 2", len(known))
	}

	host.mu.Lock()
	caps, ok := host.exposed[305419896]
	host.mu.Unlock()
	if !ok {
		t.Fatal("capabilities not exposed for device 305419896")
	}
	if !caps.RGB || !caps.Brightness || !caps.ColorTemp {
		t.Errorf("type 6 capabilities: got %+v", caps)
	}

	// One CONNECTED probe per new bulb.
	seen := map[uint32]bool{}
	for i := 0; i < 2; i++ {
		pkt := waitPacket(t, received)
		if pkt.Type != cloud.PacketConnected {
			t.Fatalf("packet %d: got type %d, want CONNECTED", i, pkt.Type)
		}
		seen[binary.BigEndian.Uint32(pkt.Payload[0:4])] = true
	}
	if !seen[1000] || !seen[1001] {
		t.Errorf("probed switches: %v", seen)
	}
}

func TestBridgeImportRejectsZeroHome(t *testing.T) {
	b, _, _ := newTestBridge(t)
	if _, err := b.ImportInventory([]Home{{ID: 0}}); err == nil {
		t.Error("expected configuration error for homeID 0")
	}
}

func TestBridgeConnectedTriggersResync(t *testing.T) {
	b, _, received := newTestBridge(t)
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received) // probe
	waitPacket(t, received) // probe

	b.HandleConnected(1000)

	bulb := b.Registry().FindBySwitch(1000)
	if !bulb.Connected() {
		t.Error("bulb not marked connected")
	}

	pkt := waitPacket(t, received)
	if pkt.Type != cloud.PacketStatus {
		t.Fatalf("resync packet type: got %d, want STATUS", pkt.Type)
	}
	if pkt.Payload[13] != cloud.SubtypeGetStatusPaginated {
		t.Errorf("subtype: got 0x%02X, want 0x52", pkt.Payload[13])
	}
	wantInner := []byte{0xFF, 0xFF, 0x00, 0x00, 0x56, 0x7E}
	if !bytes.Equal(pkt.Payload[18:], wantInner) {
		t.Errorf("inner: got %X, want %X", pkt.Payload[18:], wantInner)
	}
}

func TestBridgeHandleStatusNotifiesHost(t *testing.T) {
	b, host, received := newTestBridge(t)
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received)
	waitPacket(t, received)

	mesh := uint16(896 + 20*256)
	b.HandleStatus(1000, []cloud.DeviceStatus{
		{MeshID: mesh, On: true, Brightness: 80, CyncTemp: 30, R: 10, G: 20, B: 30, HasColor: true},
	})

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.updates) != 1 {
		t.Fatalf("updates: got %d, want 1", len(host.updates))
	}
	u := host.updates[0]
	if u.On == nil || !*u.On {
		t.Error("on not reported")
	}
	if u.Brightness == nil || *u.Brightness != 80 {
		t.Errorf("brightness: got %v", u.Brightness)
	}
	if u.ColorTemp == nil || *u.ColorTemp != ViewColorTemp(30) {
		t.Errorf("color temp: got %v", u.ColorTemp)
	}
}

func TestBridgeHandleStatusUnknownMeshDropped(t *testing.T) {
	b, host, _ := newTestBridge(t)
	b.HandleStatus(1000, []cloud.DeviceStatus{{MeshID: 77, On: true}})
	if host.updateCount() != 0 {
		t.Error("update for unknown mesh")
	}
}

func TestBridgeHostPanicDoesNotPropagate(t *testing.T) {
	b, host, received := newTestBridge(t)
	host.panics = true
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received)
	waitPacket(t, received)

	mesh := uint16(896 + 20*256)
	// Must not panic the dispatch path.
	b.HandleStatus(1000, []cloud.DeviceStatus{{MeshID: mesh, On: true, Brightness: 10}})
	if host.updateCount() != 1 {
		t.Error("host not called")
	}
}

func TestBridgeUserIntentEmitsSetState(t *testing.T) {
	b, _, received := newTestBridge(t)
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received)
	waitPacket(t, received)

	on := true
	if err := b.UserIntent(305419896, Intent{SetOn: &on}); err != nil {
		t.Fatal(err)
	}

	pkt := waitPacket(t, received)
	if pkt.Type != cloud.PacketStatus {
		t.Fatalf("packet type: got %d, want STATUS", pkt.Type)
	}
	if got := binary.BigEndian.Uint32(pkt.Payload[0:4]); got != 1000 {
		t.Errorf("switchID: got %d, want 1000", got)
	}
	if pkt.Payload[13] != cloud.SubtypeSetState {
		t.Errorf("subtype: got 0x%02X, want 0xF0", pkt.Payload[13])
	}
	inner := pkt.Payload[18:]
	if len(inner) != 16 {
		t.Fatalf("inner length: got %d, want 16", len(inner))
	}
	if inner[8] != 1 {
		t.Errorf("on byte: got %d, want 1", inner[8])
	}
}

func TestBridgeUserIntentErrors(t *testing.T) {
	b, _, received := newTestBridge(t)
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received)
	waitPacket(t, received)

	on := true
	if err := b.UserIntent(42, Intent{SetOn: &on}); err == nil {
		t.Error("expected error for unknown device")
	}
	if err := b.UserIntent(305419896, Intent{}); err == nil {
		t.Error("expected error for empty intent")
	}

	// Capability-gated rejection, locally, without a frame.
	hue := 120.0
	if err := b.UserIntent(305419897, Intent{SetHue: &hue}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("got %v, want ErrNotSupported", err)
	}
	select {
	case pkt := <-received:
		t.Errorf("unexpected frame emitted: type %d", pkt.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeProbeCycleMarksOffline(t *testing.T) {
	b, _, received := newTestBridge(t)
	b.ImportInventory([]Home{testHome()})
	waitPacket(t, received)
	waitPacket(t, received)

	b.HandleConnected(1000)
	waitPacket(t, received) // resync request

	var offline []uint32
	var mu sync.Mutex
	b.Events().On(EventBulbOffline, func(e Event) {
		mu.Lock()
		offline = append(offline, e.Data["device_id"].(uint32))
		mu.Unlock()
	})

	b.reconciler.ProbeAll()

	bulb := b.Registry().FindBySwitch(1000)
	if bulb.Connected() {
		t.Error("bulb still connected after probe cycle start")
	}
	mu.Lock()
	if len(offline) != 1 || offline[0] != 305419896 {
		t.Errorf("offline events: got %v", offline)
	}
	mu.Unlock()

	// And a fresh probe per bulb went out.
	for i := 0; i < 2; i++ {
		pkt := waitPacket(t, received)
		if pkt.Type != cloud.PacketConnected {
			t.Errorf("probe %d: got type %d", i, pkt.Type)
		}
	}
}
