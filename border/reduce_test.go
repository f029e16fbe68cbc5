package border_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wlambilight.app/ambilight/border"
)

func uniformImage(w, h int, px [4]byte) border.Image {
	pix := make([]byte, w*h*4)
	for o := 0; o < len(pix); o += 4 {
		copy(pix[o:], px[:])
	}
	return border.Image{Width: w, Height: h, Pix: pix}
}

func TestReduceUniformIsIdentity(t *testing.T) {
	img := uniformImage(64, 48, [4]byte{12, 200, 77, 0xff})

	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 1, 1),
		image.Rect(3, 5, 20, 9),
		image.Rect(0, 0, 64, 48),
	} {
		assert.Equal(t, border.RGB{R: 12, G: 200, B: 77}, border.Reduce(img, r), "%v", r)
	}
}

func TestReduceZeroAreaIsBlack(t *testing.T) {
	img := uniformImage(8, 8, [4]byte{255, 255, 255, 255})

	assert.Equal(t, border.RGB{}, border.Reduce(img, image.Rect(3, 3, 3, 6)))
	assert.Equal(t, border.RGB{}, border.Reduce(img, image.Rectangle{}))
	assert.Equal(t, border.RGB{}, border.Reduce(img, image.Rect(10, 10, 20, 20)))
}

func TestReduceTruncates(t *testing.T) {
	// two pixels: R 1 and 2 -> mean 1.5 -> 1
	img := border.Image{Width: 2, Height: 1, Pix: []byte{1, 10, 255, 0, 2, 11, 254, 0}}

	assert.Equal(t, border.RGB{R: 1, G: 10, B: 254}, border.Reduce(img, img.Bounds()))
}

func TestReduceIgnoresTopByte(t *testing.T) {
	a := uniformImage(4, 4, [4]byte{9, 8, 7, 0x00})
	b := uniformImage(4, 4, [4]byte{9, 8, 7, 0xff})

	assert.Equal(t, border.Reduce(a, a.Bounds()), border.Reduce(b, b.Bounds()))
}

func TestReduceHonorsStride(t *testing.T) {
	// 2x2 image with 4 bytes of padding per row filled with white
	pix := []byte{
		10, 20, 30, 0, 10, 20, 30, 0, 255, 255, 255, 255,
		10, 20, 30, 0, 10, 20, 30, 0, 255, 255, 255, 255,
	}
	img := border.Image{Width: 2, Height: 2, Stride: 12, Pix: pix}
	require.NoError(t, img.Validate())

	assert.Equal(t, border.RGB{R: 10, G: 20, B: 30}, border.Reduce(img, img.Bounds()))
}

func TestReduceClipsToImage(t *testing.T) {
	img := uniformImage(4, 4, [4]byte{40, 50, 60, 0})

	assert.Equal(t, border.RGB{R: 40, G: 50, B: 60}, border.Reduce(img, image.Rect(-10, -10, 2, 2)))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, border.Image{Width: 4, Height: 4, Pix: make([]byte, 60)}.Validate(), border.ErrShortImage)
	assert.NoError(t, border.Image{Width: 4, Height: 4, Pix: make([]byte, 64)}.Validate())
	assert.NoError(t, border.Image{}.Validate())
}

func TestComputeFollowsWiringOrder(t *testing.T) {
	const w, h = 1920, 1080
	img := uniformImage(w, h, [4]byte{0, 0, 0, 0})

	// paint every window with a color derived from its index
	ws := border.Partition(w, h)
	for i, win := range ws {
		for y := win.Rect.Min.Y; y < win.Rect.Max.Y; y++ {
			for x := win.Rect.Min.X; x < win.Rect.Max.X; x++ {
				o := (y*w + x) * 4
				img.Pix[o] = byte(i)
				img.Pix[o+1] = byte(i * 2)
				img.Pix[o+2] = byte(255 - i)
			}
		}
	}

	var got border.Colors
	border.Compute(img, &got)

	// windows in the bottom-right/right and bottom-left/left corners
	// share pixels, so only check zones that do not.
	for i, win := range ws {
		if win.Zone != border.Top {
			continue
		}
		assert.Equal(t, border.RGB{R: byte(i), G: byte(i * 2), B: byte(255 - i)}, got[i], "top[%d]", win.Slot)
	}
}

func TestComputeUniformScreen(t *testing.T) {
	img := uniformImage(1280, 720, [4]byte{100, 150, 200, 0})

	var got border.Colors
	border.Compute(img, &got)

	for i, c := range got {
		assert.Equal(t, border.RGB{R: 100, G: 150, B: 200}, c, "led %d", i)
	}
}
