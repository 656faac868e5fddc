// Package config persists the handful of values this bridge owns
// itself: where to reach the real controller, and how fast the mock
// simulator should move. Broader CSC/SAL configuration remains an
// external collaborator; this store never grows past these two
// records.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket = "atdome"

	deviceSessionKey  = "device_session"
	mockControllerKey = "mock_controller"
)

// DeviceSessionConfig is the real controller's TCP target.
type DeviceSessionConfig struct {
	Host string
	Port int
}

var defaultDeviceSessionConfig = DeviceSessionConfig{
	Host: "localhost",
	Port: 9999,
}

// MockControllerConfig tunes the simulator's kinematics and the address
// it listens on.
type MockControllerConfig struct {
	ListenAddr           string
	CyclePeriod          time.Duration
	DeltaAzPerCycle      float32
	MainDoorMoveSpeed    float32
	DropoutDoorMoveSpeed float32
}

var defaultMockControllerConfig = MockControllerConfig{
	ListenAddr:           "127.0.0.1:0",
	CyclePeriod:          50 * time.Millisecond,
	DeltaAzPerCycle:      0.12,
	MainDoorMoveSpeed:    5.0,
	DropoutDoorMoveSpeed: 2.5,
}

// Store wraps a bbolt database holding this bridge's configuration
// records.
type Store struct {
	db *bolt.DB
}

// NewStore wraps db, seeding default records for any key not already
// present.
func NewStore(db *bolt.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.setDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) setDefaults() error {
	if _, err := s.GetDeviceSessionConfig(); err != nil {
		log.Info("setting default device session config")
		if err := s.SetDeviceSessionConfig(defaultDeviceSessionConfig); err != nil {
			return err
		}
	}
	if _, err := s.GetMockControllerConfig(); err != nil {
		log.Info("setting default mock controller config")
		if err := s.SetMockControllerConfig(defaultMockControllerConfig); err != nil {
			return err
		}
	}
	return nil
}

// SetDeviceSessionConfig saves cfg as JSON in the database.
func (s *Store) SetDeviceSessionConfig(cfg DeviceSessionConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	return s.put(deviceSessionKey, cfg)
}

// GetDeviceSessionConfig retrieves the real controller's TCP target.
func (s *Store) GetDeviceSessionConfig() (DeviceSessionConfig, error) {
	var cfg DeviceSessionConfig
	err := s.get(deviceSessionKey, &cfg)
	return cfg, err
}

// SetMockControllerConfig saves cfg as JSON in the database.
func (s *Store) SetMockControllerConfig(cfg MockControllerConfig) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if cfg.CyclePeriod <= 0 {
		return fmt.Errorf("cycle period must be positive")
	}
	return s.put(mockControllerKey, cfg)
}

// GetMockControllerConfig retrieves the simulator's tuning parameters.
func (s *Store) GetMockControllerConfig() (MockControllerConfig, error) {
	var cfg MockControllerConfig
	err := s.get(mockControllerKey, &cfg)
	return cfg, err
}

func (s *Store) put(key string, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		value, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

func (s *Store) get(key string, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		value := b.Get([]byte(key))
		if value == nil {
			return fmt.Errorf("key %s not found", key)
		}
		return json.Unmarshal(value, v)
	})
}
