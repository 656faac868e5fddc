// Package protocol implements the ATDome controller's line-oriented ASCII
// command set: the eleven-arm Command variant, its wire encoding, and a
// regex-based decoder.
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CommandKind identifies which of the eleven Command arms a Command
// holds.
type CommandKind int

const (
	KindMoveAz CommandKind = iota
	KindCloseShutter
	KindOpenShutter
	KindStopMotion
	KindHomeAzimuth
	KindOpenShutterDropoutDoor
	KindCloseShutterDropoutDoor
	KindOpenShutterMainDoor
	KindCloseShutterMainDoor
	KindGetStatus
	KindUnknown
)

func (k CommandKind) String() string {
	switch k {
	case KindMoveAz:
		return "MoveAz"
	case KindCloseShutter:
		return "CloseShutter"
	case KindOpenShutter:
		return "OpenShutter"
	case KindStopMotion:
		return "StopMotion"
	case KindHomeAzimuth:
		return "HomeAzimuth"
	case KindOpenShutterDropoutDoor:
		return "OpenShutterDropoutDoor"
	case KindCloseShutterDropoutDoor:
		return "CloseShutterDropoutDoor"
	case KindOpenShutterMainDoor:
		return "OpenShutterMainDoor"
	case KindCloseShutterMainDoor:
		return "CloseShutterMainDoor"
	case KindGetStatus:
		return "GetStatus"
	default:
		return "Unknown"
	}
}

// Command is a tagged variant over the eleven commands the ATDome
// controller accepts. MoveAz is the only parameter-bearing arm; Az is
// meaningful only when Kind == KindMoveAz.
type Command struct {
	Kind CommandKind
	Az   float32
}

func MoveAz(az float32) Command        { return Command{Kind: KindMoveAz, Az: az} }
func CloseShutter() Command            { return Command{Kind: KindCloseShutter} }
func OpenShutter() Command             { return Command{Kind: KindOpenShutter} }
func StopMotion() Command              { return Command{Kind: KindStopMotion} }
func HomeAzimuth() Command             { return Command{Kind: KindHomeAzimuth} }
func OpenShutterDropoutDoor() Command  { return Command{Kind: KindOpenShutterDropoutDoor} }
func CloseShutterDropoutDoor() Command { return Command{Kind: KindCloseShutterDropoutDoor} }
func OpenShutterMainDoor() Command     { return Command{Kind: KindOpenShutterMainDoor} }
func CloseShutterMainDoor() Command    { return Command{Kind: KindCloseShutterMainDoor} }
func GetStatus() Command               { return Command{Kind: KindGetStatus} }
func Unknown() Command                 { return Command{Kind: KindUnknown} }

func (c Command) String() string {
	if c.Kind == KindMoveAz {
		return fmt.Sprintf("MoveAz(%v)", c.Az)
	}
	return c.Kind.String()
}

// Encode renders the wire bytes for c. Unknown encodes to an empty byte
// slice — the mock controller never writes it back to the wire, it only
// logs and moves on.
func (c Command) Encode() []byte {
	switch c.Kind {
	case KindMoveAz:
		return []byte(fmt.Sprintf("%v MV\r\n", c.Az))
	case KindGetStatus:
		return []byte("+\r\n")
	case KindCloseShutter:
		return []byte("SC")
	case KindOpenShutter:
		return []byte("SO")
	case KindStopMotion:
		return []byte("ST")
	case KindHomeAzimuth:
		return []byte("HM")
	case KindOpenShutterDropoutDoor:
		return []byte("DN")
	case KindCloseShutterDropoutDoor:
		return []byte("UP")
	case KindOpenShutterMainDoor:
		return []byte("OP")
	case KindCloseShutterMainDoor:
		return []byte("CL")
	default:
		return []byte{}
	}
}

// decoder pairs a compiled pattern with the CommandKind it decodes to.
// The MoveAz pattern is checked first so its named group can be pulled
// out; the rest follow the same fixed precedence the controller itself
// uses to disambiguate overlapping short codes.
type decoder struct {
	kind CommandKind
	re   *regexp.Regexp
}

var decoders = []decoder{
	{KindMoveAz, regexp.MustCompile(`(?P<az>[0-9]*) MV`)},
	{KindCloseShutter, regexp.MustCompile(`SC`)},
	{KindOpenShutter, regexp.MustCompile(`SO`)},
	{KindStopMotion, regexp.MustCompile(`ST`)},
	{KindHomeAzimuth, regexp.MustCompile(`HM`)},
	{KindOpenShutterDropoutDoor, regexp.MustCompile(`DN`)},
	{KindCloseShutterDropoutDoor, regexp.MustCompile(`UP`)},
	{KindOpenShutterMainDoor, regexp.MustCompile(`OP`)},
	{KindCloseShutterMainDoor, regexp.MustCompile(`CL`)},
	{KindGetStatus, regexp.MustCompile(`\+`)},
}

// Parse decodes text (trimmed of a trailing \r\n) into a Command. The
// first pattern that matches wins; unmatched input yields Unknown.
func Parse(text string) Command {
	trimmed := strings.TrimSuffix(text, "\r\n")

	for _, d := range decoders {
		match := d.re.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		if d.kind == KindMoveAz {
			azIdx := d.re.SubexpIndex("az")
			az, err := strconv.ParseFloat(match[azIdx], 32)
			if err != nil {
				return Unknown()
			}
			return MoveAz(float32(az))
		}
		return Command{Kind: d.kind}
	}
	return Unknown()
}
