package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketHomes = []byte("homes")
	bucketBulbs = []byte("bulbs")
	bucketUUIDs = []byte("uuids")
)

// accessoryNamespace seeds the deterministic accessory UUID derivation, so a
// rebuilt store regenerates the same UUID for the same deviceID.
var accessoryNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHomes, bucketBulbs, bucketUUIDs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// u32key encodes a numeric ID as a fixed-width big-endian bucket key, keeping
// cursor order numeric.
func u32key(id uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], id)
	return key[:]
}

func (s *BoltStore) SaveHome(home *Home) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(home)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHomes).Put(u32key(home.ID), data)
	})
}

func (s *BoltStore) ListHomes() ([]*Home, error) {
	var homes []*Home
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHomes).ForEach(func(k, v []byte) error {
			var home Home
			if err := json.Unmarshal(v, &home); err != nil {
				return err
			}
			homes = append(homes, &home)
			return nil
		})
	})
	return homes, err
}

func (s *BoltStore) SaveBulb(bulb *Bulb) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(bulb)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBulbs).Put(u32key(bulb.DeviceID), data)
	})
}

func (s *BoltStore) GetBulb(deviceID uint32) (*Bulb, error) {
	var bulb Bulb
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBulbs).Get(u32key(deviceID))
		if data == nil {
			return fmt.Errorf("bulb %d: %w", deviceID, ErrNotFound)
		}
		return json.Unmarshal(data, &bulb)
	})
	if err != nil {
		return nil, err
	}
	return &bulb, nil
}

func (s *BoltStore) DeleteBulb(deviceID uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBulbs).Delete(u32key(deviceID))
	})
}

func (s *BoltStore) ListBulbs() ([]*Bulb, error) {
	var bulbs []*Bulb
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		bulbs = make([]*Bulb, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var bulb Bulb
			if err := json.Unmarshal(v, &bulb); err != nil {
				return err
			}
			bulbs = append(bulbs, &bulb)
			return nil
		})
	})
	return bulbs, err
}

func (s *BoltStore) AccessoryUUID(deviceID uint32) (string, error) {
	key := u32key(deviceID)

	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketUUIDs).Get(key); data != nil {
			id = string(data)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewSHA1(accessoryNamespace, key).String()
	err = s.db.Update(func(tx *bolt.Tx) error {
		// Another caller may have raced us here; keep the stored value.
		if data := tx.Bucket(bucketUUIDs).Get(key); data != nil {
			id = string(data)
			return nil
		}
		return tx.Bucket(bucketUUIDs).Put(key, []byte(id))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
