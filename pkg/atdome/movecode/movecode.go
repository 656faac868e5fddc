// Package movecode defines the ATDome controller's motion bitmask: eight
// single-bit flags packed into one byte describing which motions are
// currently in progress.
package movecode

// Code is a bitmask of Flag values.
type Code byte

// Flag is one of the eight named motion bits the ATDome controller packs
// into its single-byte move code.
type Flag byte

const (
	AzimuthPositive    Flag = 0x01
	AzimuthNegative    Flag = 0x02
	MainDoorClosing    Flag = 0x04
	MainDoorOpening    Flag = 0x08
	DropoutDoorClosing Flag = 0x10
	DropoutDoorOpening Flag = 0x20
	AzimuthHoming      Flag = 0x40
	EStop              Flag = 0x80
)

// Bit returns the byte value of the flag.
func (f Flag) Bit() byte {
	return byte(f)
}

// Set returns mask with flag asserted.
func Set(mask Code, flag Flag) Code {
	return mask | Code(flag)
}

// Clear returns mask with flag deasserted, regardless of its prior state.
func Clear(mask Code, flag Flag) Code {
	return mask &^ Code(flag)
}

// Test reports whether flag is asserted in mask.
func Test(mask Code, flag Flag) bool {
	return mask&Code(flag) != 0
}

// ClearIfSet toggles flag off via XOR, but only after checking that the
// bit is set; when it is clear, mask is returned unchanged. Applying XOR
// to a bit that is unexpectedly clear would instead set it — the
// double-toggle hazard the mock controller's StopMotion handling must
// avoid.
func ClearIfSet(mask Code, flag Flag) Code {
	if !Test(mask, flag) {
		return mask
	}
	return mask ^ Code(flag)
}
