package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

// ParseError reports a failure to parse one line of a controller status
// dump. It carries the offending line text so callers can log it.
type ParseError struct {
	Line      string
	LineIndex int
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("status parse error at line %d (%q): %s", e.LineIndex, e.Line, e.Reason)
}

// line-indexed regexes, one per fixed line of the status dump.
var (
	reMain                = regexp.MustCompile(`MAIN +[A-Z]+ +(\d+)`)
	reDrop                = regexp.MustCompile(`DROP +[A-Z]+ +(\d+)`)
	reAutoShutdown        = regexp.MustCompile(`\[(ON|OFF)\] +(\d+)`)
	reAzPos               = regexp.MustCompile(`(POSN|HOME) +(\d*\.?\d+)`)
	reMoveCode            = regexp.MustCompile(`(?:RL|RR|--) +(\d+)`)
	reHomed               = regexp.MustCompile(`Dome (not )?homed`)
	reEstopActive         = regexp.MustCompile(`Emergency Stop Active: +(\d)`)
	reScbLinkOK           = regexp.MustCompile(`Top Comm Link OK: +(\d)`)
	reHomeAzimuth         = regexp.MustCompile(`Home Azimuth: +(\d*\.?\d+)`)
	reHighSpeed           = regexp.MustCompile(`High Speed.+: +(\d*\.?\d+)`)
	reCoast               = regexp.MustCompile(`Coast.+: +(\d*\.?\d+)`)
	reTolerance           = regexp.MustCompile(`Tolerance.+: +(\d*\.?\d+)`)
	reEncoderCountsPer360 = regexp.MustCompile(`Encoder Counts per 360: +(\d+)`)
	reEncoderCounts       = regexp.MustCompile(`Encoder Counts: +(\d+)`)
	reLastAzimuthGoto    = regexp.MustCompile(`Last Azimuth GoTo: +(\d*\.?\d+)`)
	reAzimuthMoveTimeout = regexp.MustCompile(`Azimuth Move Timeout.+: +(\d*\.?\d+)`)
	reRainSensor         = regexp.MustCompile(`Rain-Snow enabled: +(\d)`)
	reCloudSensor        = regexp.MustCompile(`Cloud Sensor enabled: +(\d)`)
	reWatchdogTimer      = regexp.MustCompile(`Watchdog Reset Time: +(\d*\.?\d+)`)
	reDropoutTimer       = regexp.MustCompile(`Dropout Timer: +(\d*\.?\d+)`)
	reReversalDelay      = regexp.MustCompile(`Reverse Delay: +(\d*\.?\d+)`)
	reMainDoorClosed     = regexp.MustCompile(`Main Door Encoder Closed: +(\d+)`)
	reMainDoorOpened     = regexp.MustCompile(`Main Door Encoder Opened: +(\d+)`)
	reDropoutDoorClosed  = regexp.MustCompile(`Dropout Encoder Closed: +(\d+)`)
	reDropoutDoorOpened  = regexp.MustCompile(`Dropout Encoder Opened: +(\d+)`)
	reDoorMoveTimeout    = regexp.MustCompile(`Door Move Timeout.+: +(\d*\.?\d+)`)
)

func captureString(line string, re *regexp.Regexp, idx int) (string, error) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("failed to match line")
	}
	if idx >= len(m) {
		return "", fmt.Errorf("missing capture group %d", idx)
	}
	return m[idx], nil
}

func captureFloat32(line string, re *regexp.Regexp, idx int) (float32, error) {
	s, err := captureString(line, re, idx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to float: %w", s, err)
	}
	return float32(v), nil
}

func captureUint(line string, re *regexp.Regexp, idx int) (uint, error) {
	s, err := captureString(line, re, idx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to uint: %w", s, err)
	}
	return uint(v), nil
}

func captureUint64(line string, re *regexp.Regexp, idx int) (uint64, error) {
	s, err := captureString(line, re, idx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to uint64: %w", s, err)
	}
	return v, nil
}

// hasGroup reports whether the regex's capture group idx participated in
// the match (used for the optional "not " group of the homed line).
func hasGroup(line string, re *regexp.Regexp, idx int) (bool, error) {
	m := re.FindStringSubmatchIndex(line)
	if m == nil {
		return false, fmt.Errorf("failed to match line")
	}
	// Submatch index pairs start at index 2 for group 1.
	pos := idx * 2
	if pos+1 >= len(m) {
		return false, nil
	}
	return m[pos] != -1, nil
}

// ParseStatus parses a controller status dump (27 or 28 lines, the 28th
// an optional trailer) into a status.Status. Any regex miss or numeric
// conversion failure aborts with a *ParseError; no partial Status is
// returned.
func ParseStatus(lines []string) (status.Status, error) {
	if len(lines) != 27 && len(lines) != 28 {
		return status.Status{}, fmt.Errorf("got %d lines; expected 27 or 28", len(lines))
	}

	var s status.Status
	var err error

	if s.MainDoorPct, err = captureFloat32(lines[0], reMain, 1); err != nil {
		return status.Status{}, &ParseError{lines[0], 0, err.Error()}
	}
	if s.DropoutDoorPct, err = captureFloat32(lines[1], reDrop, 1); err != nil {
		return status.Status{}, &ParseError{lines[1], 1, err.Error()}
	}

	autoShutdown, err := captureString(lines[2], reAutoShutdown, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[2], 2, err.Error()}
	}
	s.AutoShutdownEnabled = autoShutdown == "ON"
	if s.SensorCode, err = captureUint(lines[2], reAutoShutdown, 2); err != nil {
		return status.Status{}, &ParseError{lines[2], 2, err.Error()}
	}

	azHomeSwitch, err := captureString(lines[3], reAzPos, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[3], 3, err.Error()}
	}
	s.AzHomeSwitch = azHomeSwitch == "HOME"
	if s.AzPos, err = captureFloat32(lines[3], reAzPos, 2); err != nil {
		return status.Status{}, &ParseError{lines[3], 3, err.Error()}
	}

	moveCode, err := captureUint(lines[4], reMoveCode, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[4], 4, err.Error()}
	}
	s.MoveCode = byte(moveCode)

	notHomed, err := hasGroup(lines[5], reHomed, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[5], 5, err.Error()}
	}
	s.Homed = !notHomed

	estop, err := captureUint(lines[6], reEstopActive, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[6], 6, err.Error()}
	}
	s.EstopActive = estop > 0

	scbLink, err := captureUint(lines[7], reScbLinkOK, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[7], 7, err.Error()}
	}
	s.ScbLinkOK = scbLink > 0

	if s.HomeAzimuth, err = captureFloat32(lines[8], reHomeAzimuth, 1); err != nil {
		return status.Status{}, &ParseError{lines[8], 8, err.Error()}
	}
	if s.HighSpeed, err = captureFloat32(lines[9], reHighSpeed, 1); err != nil {
		return status.Status{}, &ParseError{lines[9], 9, err.Error()}
	}
	if s.Coast, err = captureFloat32(lines[10], reCoast, 1); err != nil {
		return status.Status{}, &ParseError{lines[10], 10, err.Error()}
	}
	if s.Tolerance, err = captureFloat32(lines[11], reTolerance, 1); err != nil {
		return status.Status{}, &ParseError{lines[11], 11, err.Error()}
	}
	if s.EncoderCountsPer360, err = captureUint64(lines[12], reEncoderCountsPer360, 1); err != nil {
		return status.Status{}, &ParseError{lines[12], 12, err.Error()}
	}
	if s.EncoderCounts, err = captureUint64(lines[13], reEncoderCounts, 1); err != nil {
		return status.Status{}, &ParseError{lines[13], 13, err.Error()}
	}
	if s.LastAzimuthGoto, err = captureFloat32(lines[14], reLastAzimuthGoto, 1); err != nil {
		return status.Status{}, &ParseError{lines[14], 14, err.Error()}
	}
	if s.AzimuthMoveTimeout, err = captureFloat32(lines[15], reAzimuthMoveTimeout, 1); err != nil {
		return status.Status{}, &ParseError{lines[15], 15, err.Error()}
	}

	rain, err := captureUint(lines[16], reRainSensor, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[16], 16, err.Error()}
	}
	s.RainSensorEnabled = rain > 0

	cloud, err := captureUint(lines[17], reCloudSensor, 1)
	if err != nil {
		return status.Status{}, &ParseError{lines[17], 17, err.Error()}
	}
	s.CloudSensorEnabled = cloud > 0

	if s.WatchdogTimer, err = captureFloat32(lines[18], reWatchdogTimer, 1); err != nil {
		return status.Status{}, &ParseError{lines[18], 18, err.Error()}
	}
	if s.DropoutTimer, err = captureFloat32(lines[19], reDropoutTimer, 1); err != nil {
		return status.Status{}, &ParseError{lines[19], 19, err.Error()}
	}
	if s.ReversalDelay, err = captureFloat32(lines[20], reReversalDelay, 1); err != nil {
		return status.Status{}, &ParseError{lines[20], 20, err.Error()}
	}
	if s.MainDoorEncoderClosed, err = captureUint64(lines[21], reMainDoorClosed, 1); err != nil {
		return status.Status{}, &ParseError{lines[21], 21, err.Error()}
	}
	if s.MainDoorEncoderOpened, err = captureUint64(lines[22], reMainDoorOpened, 1); err != nil {
		return status.Status{}, &ParseError{lines[22], 22, err.Error()}
	}
	if s.DropoutDoorEncoderClosed, err = captureUint64(lines[23], reDropoutDoorClosed, 1); err != nil {
		return status.Status{}, &ParseError{lines[23], 23, err.Error()}
	}
	if s.DropoutDoorEncoderOpened, err = captureUint64(lines[24], reDropoutDoorOpened, 1); err != nil {
		return status.Status{}, &ParseError{lines[24], 24, err.Error()}
	}
	if s.DoorMoveTimeout, err = captureFloat32(lines[25], reDoorMoveTimeout, 1); err != nil {
		return status.Status{}, &ParseError{lines[25], 25, err.Error()}
	}

	return s, nil
}

// ParseStatusFromBuffer splits a raw reply buffer (the prompt already
// stripped by the caller) on '\n' and feeds the resulting lines to
// ParseStatus. A trailing empty line produced by the final '\n' before
// the prompt is dropped so that a 27-line render (which always ends with
// '\n') parses as 27 lines, not 28.
func ParseStatusFromBuffer(buf []byte) (status.Status, error) {
	text := string(buf)
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return ParseStatus(lines)
}
