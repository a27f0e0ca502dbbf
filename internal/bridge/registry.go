package bridge

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Home is one cloud container of bulbs, as delivered by the REST inventory.
type Home struct {
	ID    uint32
	Name  string
	Bulbs []BulbRecord
}

// BulbRecord is one inventory entry.
type BulbRecord struct {
	DeviceID    uint32
	SwitchID    uint32
	DeviceType  uint8
	DisplayName string
}

// Registry is the authoritative mapping from the three cloud identifier
// spaces to bulbs. Bulbs are created once per switchID; later inventory
// passes update attributes in place.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	byDevice map[uint32]*Bulb
	bySwitch map[uint32]*Bulb
	byMesh   map[uint16][]*Bulb
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("component", "registry"),
		byDevice: make(map[uint32]*Bulb),
		bySwitch: make(map[uint32]*Bulb),
		byMesh:   make(map[uint16][]*Bulb),
	}
}

// Import upserts one home's bulbs. It returns the bulbs created by this pass
// (for capability exposure) and the deviceIDs now known under the home, so
// the host can remove stale accessories. A zero homeID is a configuration
// error: the mesh address derivation is undefined for it.
func (r *Registry) Import(home Home, cmd commander) (created []*Bulb, known []uint32, err error) {
	if home.ID == 0 {
		return nil, nil, fmt.Errorf("registry: home %q has id 0", home.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range home.Bulbs {
		meshID, derr := MeshID(rec.DeviceID, home.ID)
		if derr != nil {
			return nil, nil, derr
		}
		known = append(known, rec.DeviceID)

		if existing, ok := r.bySwitch[rec.SwitchID]; ok {
			existing.mu.Lock()
			existing.displayName = rec.DisplayName
			existing.mu.Unlock()
			continue
		}

		bulb := &Bulb{
			DeviceID:    rec.DeviceID,
			SwitchID:    rec.SwitchID,
			MeshID:      meshID,
			HomeID:      home.ID,
			DeviceType:  rec.DeviceType,
			Caps:        CapabilitiesFor(rec.DeviceType),
			cmd:         cmd,
			displayName: rec.DisplayName,
		}
		r.byDevice[rec.DeviceID] = bulb
		r.bySwitch[rec.SwitchID] = bulb
		r.byMesh[meshID] = append(r.byMesh[meshID], bulb)
		created = append(created, bulb)
		r.logger.Info("bulb registered",
			"name", rec.DisplayName,
			"device", rec.DeviceID,
			"switch", rec.SwitchID,
			"mesh", meshID,
			"type", rec.DeviceType)
	}
	return created, known, nil
}

// FindByDevice looks a bulb up by deviceID.
func (r *Registry) FindByDevice(deviceID uint32) *Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDevice[deviceID]
}

// FindBySwitch looks a bulb up by switchID.
func (r *Registry) FindBySwitch(switchID uint32) *Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySwitch[switchID]
}

// FindByMesh looks a bulb up by meshID, returning the first match.
func (r *Registry) FindByMesh(meshID uint16) *Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bulbs := r.byMesh[meshID]; len(bulbs) > 0 {
		return bulbs[0]
	}
	return nil
}

// ResolveStatus finds the bulb a status record addresses. meshIDs can
// collide across homes; the switchID on the inbound packet scopes the lookup
// to the right home.
func (r *Registry) ResolveStatus(switchID uint32, meshID uint16) *Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byMesh[meshID]
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	if sw := r.bySwitch[switchID]; sw != nil {
		for _, b := range candidates {
			if b.HomeID == sw.HomeID {
				return b
			}
		}
	}
	return candidates[0]
}

// Remove deletes a bulb after the host reports its accessory removed.
func (r *Registry) Remove(deviceID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bulb, ok := r.byDevice[deviceID]
	if !ok {
		return
	}
	delete(r.byDevice, deviceID)
	delete(r.bySwitch, bulb.SwitchID)

	bulbs := r.byMesh[bulb.MeshID]
	for i, b := range bulbs {
		if b == bulb {
			r.byMesh[bulb.MeshID] = append(bulbs[:i], bulbs[i+1:]...)
			break
		}
	}
	if len(r.byMesh[bulb.MeshID]) == 0 {
		delete(r.byMesh, bulb.MeshID)
	}
	r.logger.Info("bulb removed", "device", deviceID)
}

// All returns every known bulb, ordered by deviceID.
func (r *Registry) All() []*Bulb {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bulbs := make([]*Bulb, 0, len(r.byDevice))
	for _, b := range r.byDevice {
		bulbs = append(bulbs, b)
	}
	sort.Slice(bulbs, func(i, j int) bool { return bulbs[i].DeviceID < bulbs[j].DeviceID })
	return bulbs
}
