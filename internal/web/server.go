package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"cync-go-home/internal/bridge"
	"cync-go-home/internal/store"
)

// Server is the read-mostly HTTP API: bulb listing, intent injection for
// debugging, and the websocket event stream.
type Server struct {
	core   *bridge.Bridge
	logger *slog.Logger
	mux    *http.ServeMux
	wsHub  *WSHub
	unsub  func()

	apiKey         string
	allowedOrigins []string
	version        string
	db             store.Store
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithAPIKey requires the X-API-Key header on every request.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithAllowedOrigins sets the origins accepted for websocket upgrades.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithVersion sets the version string reported by /api/status.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithStore lets /api/bulbs report each bulb's stable accessory UUID.
func WithStore(db store.Store) ServerOption {
	return func(s *Server) { s.db = db }
}

// NewServer creates the API server over the bridge core.
func NewServer(core *bridge.Bridge, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		core:   core,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
		wsHub:  NewWSHub(logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.wsHub.Run()
	s.unsub = core.Events().OnAll(func(e bridge.Event) { s.wsHub.Broadcast(e) })

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/bulbs", s.handleBulbs)
	s.mux.HandleFunc("POST /api/bulbs/{device}/set", s.handleSet)
	s.mux.HandleFunc("GET /api/events", s.handleWS)
	return s
}

// Stop detaches from the event bus and closes all websocket clients.
func (s *Server) Stop() {
	if s.unsub != nil {
		s.unsub()
	}
	s.wsHub.Stop()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bulbs := s.core.Registry().All()
	connected := 0
	for _, b := range bulbs {
		if b.Connected() {
			connected++
		}
	}
	writeJSON(w, map[string]any{
		"version":         s.version,
		"bulbs":           len(bulbs),
		"bulbs_connected": connected,
	})
}

// bulbView is one /api/bulbs entry: the live state plus the accessory UUID
// the host knows the bulb by.
type bulbView struct {
	bridge.BulbState
	UUID string `json:"uuid,omitempty"`
}

func (s *Server) handleBulbs(w http.ResponseWriter, r *http.Request) {
	bulbs := s.core.Registry().All()
	views := make([]bulbView, 0, len(bulbs))
	for _, b := range bulbs {
		view := bulbView{BulbState: b.Snapshot()}
		if s.db != nil {
			if id, err := s.db.AccessoryUUID(b.DeviceID); err == nil {
				view.UUID = id
			}
		}
		views = append(views, view)
	}
	writeJSON(w, views)
}

// setRequest is the /api/bulbs/{device}/set body: one optional field per
// user intent, applied in field order.
type setRequest struct {
	On         *bool    `json:"on"`
	Brightness *uint8   `json:"brightness"`
	ColorTemp  *int     `json:"color_temp"`
	Hue        *float64 `json:"hue"`
	Saturation *float64 `json:"saturation"`
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.ParseUint(r.PathValue("device"), 10, 32)
	if err != nil {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	if s.core.Registry().FindByDevice(uint32(deviceID)) == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	intents := []bridge.Intent{}
	if req.On != nil {
		intents = append(intents, bridge.Intent{SetOn: req.On})
	}
	if req.Brightness != nil {
		intents = append(intents, bridge.Intent{SetBrightness: req.Brightness})
	}
	if req.ColorTemp != nil {
		intents = append(intents, bridge.Intent{SetColorTemp: req.ColorTemp})
	}
	if req.Hue != nil {
		intents = append(intents, bridge.Intent{SetHue: req.Hue})
	}
	if req.Saturation != nil {
		intents = append(intents, bridge.Intent{SetSaturation: req.Saturation})
	}
	if len(intents) == 0 {
		http.Error(w, "empty command", http.StatusBadRequest)
		return
	}

	for _, intent := range intents {
		if err := s.core.UserIntent(uint32(deviceID), intent); err != nil {
			s.logger.Warn("intent rejected", "device", deviceID, "err", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}
	writeJSON(w, map[string]string{"result": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
