// Package status defines the ATDome controller's telemetry snapshot and
// its exact ASCII rendering, which doubles as the mock controller's wire
// output and the real controller's status-dump format.
package status

import "fmt"

// Status is a plain-data snapshot of the ATDome controller. It is always
// value-copied; nothing in this package shares a Status by reference.
type Status struct {
	AzPos           float32
	LastAzimuthGoto float32
	HomeAzimuth     float32

	MainDoorPct     float32
	DropoutDoorPct  float32

	MoveCode byte

	AzHomeSwitch bool
	Homed        bool
	EstopActive  bool
	ScbLinkOK    bool

	AutoShutdownEnabled bool
	RainSensorEnabled   bool
	CloudSensorEnabled  bool
	SensorCode          uint

	HighSpeed      float32
	Coast          float32
	Tolerance      float32
	ReversalDelay  float32

	AzimuthMoveTimeout float32
	DoorMoveTimeout    float32
	DropoutTimer       float32
	WatchdogTimer      float32

	EncoderCounts            uint64
	EncoderCountsPer360      uint64
	MainDoorEncoderClosed    uint64
	MainDoorEncoderOpened    uint64
	DropoutDoorEncoderClosed uint64
	DropoutDoorEncoderOpened uint64
}

// Default returns the baseline Status carrying every constant the
// controller's ASCII dump renders for fields this bridge does not
// otherwise track. Render's output for any Status built from Default
// round-trips through the parser for these fields (Testable Property P1).
func Default() Status {
	return Status{
		HomeAzimuth:              10.00,
		HighSpeed:                5.00,
		Coast:                    0.50,
		Tolerance:                1.00,
		EncoderCountsPer360:      4018143232,
		EncoderCounts:            111615089,
		AzimuthMoveTimeout:       120,
		RainSensorEnabled:        true,
		CloudSensorEnabled:       true,
		WatchdogTimer:            600,
		DropoutTimer:             5,
		ReversalDelay:            4,
		MainDoorEncoderClosed:    118449181478,
		MainDoorEncoderOpened:    8287616388,
		DropoutDoorEncoderClosed: 5669776578,
		DropoutDoorEncoderOpened: 5710996184,
		DoorMoveTimeout:          360,
	}
}

// Render produces the exact 27-line ASCII block the controller emits.
// Only AzPos, MoveCode and LastAzimuthGoto vary with Status; every other
// line is a constant. The constants match Default, except that the
// "Top Comm Link OK" line always reads 1 while Default leaves ScbLinkOK
// false.
func (s Status) Render() string {
	return fmt.Sprintf(
		"MAIN CLOSED 000\n"+
			"DROP CLOSED 000\n"+
			"[OFF] 00\n"+
			"POSN %v\n"+
			"-- %03d\n"+
			"Dome not homed\n"+
			"Emergency Stop Active: 0\n"+
			"Top Comm Link OK:    1\n"+
			"Home Azimuth: 10.00\n"+
			"High Speed (degrees):  5.00\n"+
			"Coast (degrees): 0.50\n"+
			"Tolerance (degrees): 1.00\n"+
			"Encoder Counts per 360: 4018143232\n"+
			"Encoder Counts:  111615089\n"+
			"Last Azimuth GoTo: %v\n"+
			"Azimuth Move Timeout (secs): 120\n"+
			"Rain-Snow enabled:  1\n"+
			"Cloud Sensor enabled: 1\n"+
			"Watchdog Reset Time: 600\n"+
			"Dropout Timer: 5\n"+
			"Reverse Delay: 4\n"+
			"Main Door Encoder Closed: 118449181478\n"+
			"Main Door Encoder Opened: 8287616388\n"+
			"Dropout Encoder Closed: 5669776578\n"+
			"Dropout Encoder Opened: 5710996184\n"+
			"Door Move Timeout (secs): 360\n"+
			"Dome has been homed: False\n",
		s.AzPos, s.MoveCode, s.LastAzimuthGoto,
	)
}

// Equal reports whether two Status values are field-for-field identical.
func (s Status) Equal(other Status) bool {
	return s == other
}
