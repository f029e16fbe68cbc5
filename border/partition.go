package border

import "image"

// Geometry holds the pixel measures derived from an image size.
type Geometry struct {
	Width  int
	Height int

	// Depth is the thickness of the sampling band along every edge.
	Depth int
	// HorizontalPitch is the width of one LED window on the top and bottom
	// runs. One pitch of margin is reserved at each end of the top run.
	HorizontalPitch int
	// VerticalPitch is the height of one LED window on the side runs.
	VerticalPitch int
}

// NewGeometry computes the geometry for a width x height image.
func NewGeometry(width, height int) Geometry {
	return Geometry{
		Width:  width,
		Height: height,
		// floor(0.02 * (width + height)), kept in integers.
		Depth:           (width + height) / 50,
		HorizontalPitch: width / (LedsTop + 2),
		VerticalPitch:   height / (LedsLeft + 2),
	}
}

// Window is the sampling rectangle of one LED.
type Window struct {
	Zone Zone
	// Slot is the position inside Zone.
	Slot int
	Rect image.Rectangle
}

// Windows returns every sampling window in wiring order.
func (g Geometry) Windows() [Total]Window {
	var out [Total]Window
	w, h, d := g.Width, g.Height, g.Depth
	hp, vp := g.HorizontalPitch, g.VerticalPitch

	n := 0
	put := func(z Zone, slot, x0, y0, cols, rows int) {
		out[n] = Window{Zone: z, Slot: slot, Rect: image.Rect(x0, y0, x0+cols, y0+rows)}
		n++
	}

	// bottom right, left to right
	for i := 0; i < LedsBottomRight; i++ {
		put(BottomRight, i, w-hp*(LedsBottomRight+1-i), h-d, hp, d)
	}
	// right, bottom to top
	for i := 0; i < LedsRight; i++ {
		put(Right, i, w-d, h-vp*(2+i), d, vp)
	}
	// top, right to left
	for i := 0; i < LedsTop; i++ {
		put(Top, i, w-hp*(2+i), 0, hp, d)
	}
	// left, top to bottom
	for i := 0; i < LedsLeft; i++ {
		put(Left, i, 0, (i+1)*vp, d, vp)
	}
	// bottom left, left to right
	for i := 0; i < LedsBottomLeft; i++ {
		put(BottomLeft, i, (i+1)*hp, h-d, hp, d)
	}
	return out
}

// Partition returns the sampling windows of a width x height image in wiring
// order.
func Partition(width, height int) [Total]Window {
	return NewGeometry(width, height).Windows()
}
