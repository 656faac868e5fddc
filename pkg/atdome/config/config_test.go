package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atdome.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewStoreSeedsDefaults(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	devCfg, err := st.GetDeviceSessionConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultDeviceSessionConfig, devCfg)

	mockCfg, err := st.GetMockControllerConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultMockControllerConfig, mockCfg)
}

func TestSetDeviceSessionConfigRejectsInvalid(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	assert.Error(t, st.SetDeviceSessionConfig(DeviceSessionConfig{Host: "", Port: 9999}))
	assert.Error(t, st.SetDeviceSessionConfig(DeviceSessionConfig{Host: "x", Port: 0}))
}

func TestSetMockControllerConfigRoundTrips(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	cfg := MockControllerConfig{
		ListenAddr:           "127.0.0.1:9000",
		CyclePeriod:          25 * time.Millisecond,
		DeltaAzPerCycle:      0.5,
		MainDoorMoveSpeed:    10,
		DropoutDoorMoveSpeed: 5,
	}
	require.NoError(t, st.SetMockControllerConfig(cfg))

	got, err := st.GetMockControllerConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestSetMockControllerConfigRejectsInvalid(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	assert.Error(t, st.SetMockControllerConfig(MockControllerConfig{ListenAddr: "", CyclePeriod: time.Second}))
	assert.Error(t, st.SetMockControllerConfig(MockControllerConfig{ListenAddr: "x", CyclePeriod: 0}))
}
