package capture

import (
	"fmt"
	"strings"
)

// Facing selects the front or back camera.
type Facing int

// Lens facings.
const (
	FacingFront Facing = iota
	FacingBack
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "FRONT"
	case FacingBack:
		return "BACK"
	}
	return fmt.Sprintf("Facing(%d)", int(f))
}

// ParseFacing accepts "FRONT" or "BACK" in any case.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToUpper(s) {
	case "FRONT":
		return FacingFront, nil
	case "BACK":
		return FacingBack, nil
	}
	return 0, fmt.Errorf("unknown lens facing %q", s)
}
