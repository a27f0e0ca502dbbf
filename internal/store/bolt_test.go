package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cync.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestBulbRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	bulb := &Bulb{
		DeviceID:    305419896,
		SwitchID:    1000,
		HomeID:      100000,
		DeviceType:  6,
		DisplayName: "Kitchen",
		LastSeen:    time.Now().Round(time.Second),
	}
	if err := s.SaveBulb(bulb); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBulb(305419896)
	if err != nil {
		t.Fatal(err)
	}
	if got.SwitchID != 1000 || got.DisplayName != "Kitchen" || got.DeviceType != 6 {
		t.Errorf("got %+v", got)
	}

	bulbs, err := s.ListBulbs()
	if err != nil {
		t.Fatal(err)
	}
	if len(bulbs) != 1 {
		t.Errorf("list: got %d bulbs, want 1", len(bulbs))
	}

	if err := s.DeleteBulb(305419896); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetBulb(305419896); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
}

func TestGetBulbNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.GetBulb(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestHomeRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SaveHome(&Home{ID: 100000, ProductID: 77, Name: "House"}); err != nil {
		t.Fatal(err)
	}
	homes, err := s.ListHomes()
	if err != nil {
		t.Fatal(err)
	}
	if len(homes) != 1 || homes[0].ProductID != 77 {
		t.Errorf("homes: got %+v", homes)
	}
}

func TestAccessoryUUIDStable(t *testing.T) {
	s, path := newTestStore(t)

	first, err := s.AccessoryUUID(305419896)
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("empty uuid")
	}
	second, err := s.AccessoryUUID(305419896)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("uuid changed within one session: %s vs %s", first, second)
	}

	other, _ := s.AccessoryUUID(305419897)
	if other == first {
		t.Error("distinct devices share a uuid")
	}

	// Survives reopen.
	s.Close()
	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	again, err := reopened.AccessoryUUID(305419896)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Errorf("uuid changed across reopen: %s vs %s", again, first)
	}
}
