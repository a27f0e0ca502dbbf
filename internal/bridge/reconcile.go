package bridge

import (
	"log/slog"
	"sync"
	"time"

	"cync-go-home/internal/cloud"
)

// probeInterval is the reachability re-probe cycle. A bulb is considered
// disconnected from the start of each cycle until its CONNECTED answer
// arrives.
const probeInterval = 300 * time.Second

// Reconciler drives the periodic per-bulb reachability probes. Status resync
// itself is event driven: the bridge requests a paginated status as soon as a
// probe answer comes back.
type Reconciler struct {
	registry *Registry
	session  *cloud.Session
	events   *EventBus
	logger   *slog.Logger
	interval time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewReconciler creates a reconciler over the registry.
func NewReconciler(registry *Registry, session *cloud.Session, events *EventBus, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		registry: registry,
		session:  session,
		events:   events,
		logger:   logger.With("component", "reconciler"),
		interval: probeInterval,
		done:     make(chan struct{}),
	}
}

// Start launches the probe cycle.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.ProbeAll()
			case <-r.done:
				return
			}
		}
	}()
}

// Stop halts the probe cycle.
func (r *Reconciler) Stop() {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

// ProbeAll marks every bulb disconnected and sends a CONNECTED probe per
// switch. Probes submitted while the session is down are queued like any
// other send.
func (r *Reconciler) ProbeAll() {
	bulbs := r.registry.All()
	for _, bulb := range bulbs {
		if bulb.setConnected(false) {
			r.events.Emit(Event{Type: EventBulbOffline, Data: map[string]any{
				"device_id": bulb.DeviceID,
				"name":      bulb.Name(),
			}})
		}
		r.Probe(bulb)
	}
	if len(bulbs) > 0 {
		r.logger.Debug("probe cycle", "bulbs", len(bulbs))
	}
}

// Probe sends one reachability probe for a bulb's switch.
func (r *Reconciler) Probe(bulb *Bulb) {
	r.session.Send(cloud.PacketConnected, cloud.BuildConnectedProbe(bulb.SwitchID, r.session.NextSeq()))
}
