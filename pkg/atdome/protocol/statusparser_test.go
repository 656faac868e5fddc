package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

func TestParseStatusWrongLineCount(t *testing.T) {
	_, err := ParseStatus([]string{"this", "is", "a", "test"})
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	lines := []string{
		"MAIN SHUT 000",
		"DROP SHUT 000",
		"[OFF] 00",
		"POSN 262.91",
		"-- 000",
		"Dome homed",
		"Emergency Stop Active: 0",
		"Top Comm Link OK: 1",
		"Home Azimuth:  0.00",
		"High Speed (degrees): 5.00",
		"Coast (degrees): 0.50",
		"Tolerance (degrees): 1.00",
		"Encoder Counts per 360: 4018143232",
		"Encoder Counts: 10970978722",
		"Last Azimuth GoTo:  10.00",
		"Azimuth Move Timeout (secs): 120",
		"Rain-Snow enabled: 0",
		"Cloud Sensor enabled: 1",
		"Watchdog Reset Time: 600",
		"Dropout Timer: 5",
		"Reverse Delay: 5",
		"Main Door Encoder Closed: 118551649796",
		"Main Door Encoder Opened: 8360300777",
		"Dropout Encoder Closed: 5669713343",
		"Dropout Encoder Opened: 5710964429",
		"Door Move Timeout (secs): 360",
		"Dome has been homed: False",
	}

	s, err := ParseStatus(lines)
	require.NoError(t, err)

	assert.False(t, s.AutoShutdownEnabled)
	assert.False(t, s.AzHomeSwitch)
	assert.Equal(t, float32(262.91), s.AzPos)
	assert.Equal(t, byte(0), s.MoveCode)
	assert.True(t, s.Homed)
	assert.False(t, s.EstopActive)
	assert.True(t, s.ScbLinkOK)
	assert.Equal(t, float32(0.0), s.HomeAzimuth)
	assert.Equal(t, float32(5.0), s.HighSpeed)
	assert.Equal(t, float32(0.5), s.Coast)
	assert.Equal(t, float32(1.0), s.Tolerance)
	assert.Equal(t, uint64(4018143232), s.EncoderCountsPer360)
	assert.Equal(t, uint64(10970978722), s.EncoderCounts)
	assert.Equal(t, float32(10.0), s.LastAzimuthGoto)
	assert.Equal(t, float32(120.0), s.AzimuthMoveTimeout)
	assert.False(t, s.RainSensorEnabled)
	assert.True(t, s.CloudSensorEnabled)
	assert.Equal(t, float32(600.0), s.WatchdogTimer)
	assert.Equal(t, float32(5.0), s.DropoutTimer)
	assert.Equal(t, float32(5.0), s.ReversalDelay)
	assert.Equal(t, uint64(118551649796), s.MainDoorEncoderClosed)
	assert.Equal(t, uint64(8360300777), s.MainDoorEncoderOpened)
	assert.Equal(t, uint64(5669713343), s.DropoutDoorEncoderClosed)
	assert.Equal(t, uint64(5710964429), s.DropoutDoorEncoderOpened)
	assert.Equal(t, float32(360.0), s.DoorMoveTimeout)
}

// TestRoundTripRender checks Testable Property P1: for a default-plus-
// overrides Status with any move_code, parse(render(s)) matches s on the
// fields the template carries (az_pos, last_azimuth_goto, move_code) and
// the constants elsewhere.
func TestRoundTripRender(t *testing.T) {
	for moveCode := 0; moveCode <= 255; moveCode += 17 {
		s := status.Default()
		s.AzPos = 101
		s.LastAzimuthGoto = 101
		s.MoveCode = byte(moveCode)

		parsed, err := ParseStatusFromBuffer([]byte(s.Render()))
		require.NoError(t, err)

		assert.Equal(t, s.AzPos, parsed.AzPos)
		assert.Equal(t, s.LastAzimuthGoto, parsed.LastAzimuthGoto)
		assert.Equal(t, s.MoveCode, parsed.MoveCode)
		assert.Equal(t, s.HomeAzimuth, parsed.HomeAzimuth)
		assert.Equal(t, s.HighSpeed, parsed.HighSpeed)
		assert.Equal(t, s.EncoderCountsPer360, parsed.EncoderCountsPer360)
		assert.False(t, parsed.Homed)
		assert.True(t, parsed.ScbLinkOK)
		assert.True(t, parsed.RainSensorEnabled)
		assert.True(t, parsed.CloudSensorEnabled)
	}
}

func TestParseStatusFromBufferDropsTrailingEmptyLine(t *testing.T) {
	s := status.Default()
	s.AzPos = 5
	s.LastAzimuthGoto = 5

	_, err := ParseStatusFromBuffer([]byte(s.Render()))
	require.NoError(t, err)
}
