// Package border maps the edges of a captured image onto the LEDs of a strip
// wired around a monitor bezel.
//
// The strip starts at the bottom-right corner and runs counter-clockwise:
//
//	***********************
//	*                     *
//	*       screen        *
//	*                     *
//	****E             S****
//
// Colors are produced in that wiring order.
package border

// LED counts per zone.
const (
	LedsBottomRight = 6
	LedsRight       = 19
	LedsTop         = 35
	LedsLeft        = 19
	LedsBottomLeft  = 6

	Total = LedsBottomRight + LedsRight + LedsTop + LedsLeft + LedsBottomLeft
)

// The pitch formulas assume a symmetric strip.
var (
	_ [0]struct{} = [LedsLeft - LedsRight]struct{}{}
	_ [0]struct{} = [LedsBottomLeft - LedsBottomRight]struct{}{}
)

// Zone is one run of the strip.
type Zone int

const (
	BottomRight Zone = iota
	Right
	Top
	Left
	BottomLeft
)

// Zones lists every zone in wiring order.
var Zones = [...]Zone{BottomRight, Right, Top, Left, BottomLeft}

func (z Zone) String() string {
	switch z {
	case BottomRight:
		return "bottom-right"
	case Right:
		return "right"
	case Top:
		return "top"
	case Left:
		return "left"
	case BottomLeft:
		return "bottom-left"
	default:
		return "unknown"
	}
}

// Count returns the number of LEDs in z.
func (z Zone) Count() int {
	switch z {
	case BottomRight:
		return LedsBottomRight
	case Right:
		return LedsRight
	case Top:
		return LedsTop
	case Left:
		return LedsLeft
	case BottomLeft:
		return LedsBottomLeft
	default:
		return 0
	}
}

// RGB is the color of one LED.
type RGB struct {
	R, G, B uint8
}

// Colors holds one color per LED, indexed by wiring position.
type Colors [Total]RGB
