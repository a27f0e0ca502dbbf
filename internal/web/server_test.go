package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cync-go-home/internal/bridge"
	"cync-go-home/internal/cloud"
	"cync-go-home/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServer builds a server over a core whose session is never started;
// outbound frames stay in the send queue.
func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *bridge.Bridge) {
	t.Helper()
	session := cloud.NewSession(cloud.Config{Addr: "test"}, testLogger())
	core := bridge.New(session, bridge.NewEventBus(testLogger()), testLogger())
	if _, err := core.ImportInventory([]bridge.Home{{
		ID: 100000,
		Bulbs: []bridge.BulbRecord{
			{DeviceID: 305419896, SwitchID: 1000, DeviceType: 6, DisplayName: "Kitchen"},
		},
	}}); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(core, testLogger(), opts...)
	t.Cleanup(srv.Stop)
	return srv, core
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, WithVersion("1.2.3"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["version"] != "1.2.3" {
		t.Errorf("version: got %v", body["version"])
	}
	if body["bulbs"] != float64(1) {
		t.Errorf("bulbs: got %v", body["bulbs"])
	}
}

func TestBulbsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bulbs", nil))

	var bulbs []bridge.BulbState
	if err := json.Unmarshal(rec.Body.Bytes(), &bulbs); err != nil {
		t.Fatal(err)
	}
	if len(bulbs) != 1 {
		t.Fatalf("bulbs: got %d, want 1", len(bulbs))
	}
	if bulbs[0].DeviceID != 305419896 || bulbs[0].Name != "Kitchen" {
		t.Errorf("bulb: got %+v", bulbs[0])
	}
}

func TestBulbsEndpointUUID(t *testing.T) {
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "cync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	srv, _ := newTestServer(t, WithStore(db))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bulbs", nil))

	var bulbs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &bulbs); err != nil {
		t.Fatal(err)
	}
	if len(bulbs) != 1 {
		t.Fatalf("bulbs: got %d, want 1", len(bulbs))
	}
	uuid, _ := bulbs[0]["uuid"].(string)
	if uuid == "" {
		t.Error("bulb view missing accessory uuid")
	}
	stable, _ := db.AccessoryUUID(305419896)
	if uuid != stable {
		t.Errorf("uuid mismatch: api %q, store %q", uuid, stable)
	}
}

func TestSetEndpoint(t *testing.T) {
	srv, core := newTestServer(t)

	body := bytes.NewBufferString(`{"on":true,"brightness":60}`)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bulbs/305419896/set", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}
	snap := core.Registry().FindByDevice(305419896).Snapshot()
	if !snap.On || snap.Brightness != 60 {
		t.Errorf("bulb state: got %+v", snap)
	}
}

func TestSetEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unknown device.
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bulbs/42/set", bytes.NewBufferString(`{"on":true}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device: got %d, want 404", rec.Code)
	}

	// Malformed device id.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bulbs/bogus/set", bytes.NewBufferString(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", rec.Code)
	}

	// Empty command.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bulbs/305419896/set", bytes.NewBufferString(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty command: got %d, want 400", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t, WithAPIKey("secret"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bulbs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bulbs", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: got %d, want 200", rec.Code)
	}
}
