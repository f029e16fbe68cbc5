package border_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wlambilight.app/ambilight/border"
)

func TestGeometry1080p(t *testing.T) {
	g := border.NewGeometry(1920, 1080)

	assert.Equal(t, 60, g.Depth)
	assert.Equal(t, 51, g.HorizontalPitch)
	assert.Equal(t, 51, g.VerticalPitch)
}

func TestDepthMatchesFloor(t *testing.T) {
	for _, tc := range []struct {
		w, h  int
		depth int
	}{
		{1920, 1080, 60},
		{2560, 1440, 80},
		{3840, 2160, 120},
		{1366, 768, 42},
		{49, 0, 0},
		{50, 0, 1},
	} {
		assert.Equal(t, tc.depth, border.NewGeometry(tc.w, tc.h).Depth, "%dx%d", tc.w, tc.h)
	}
}

func TestPartition1080pFirstWindow(t *testing.T) {
	ws := border.Partition(1920, 1080)

	first := ws[0]
	assert.Equal(t, border.BottomRight, first.Zone)
	assert.Equal(t, 0, first.Slot)
	assert.Equal(t, image.Rect(1563, 1020, 1614, 1080), first.Rect)
}

func TestPartitionZoneOrder(t *testing.T) {
	ws := border.Partition(1920, 1080)
	require.Len(t, ws, border.Total)

	i := 0
	for _, z := range border.Zones {
		for slot := 0; slot < z.Count(); slot++ {
			assert.Equal(t, z, ws[i].Zone, "window %d", i)
			assert.Equal(t, slot, ws[i].Slot, "window %d", i)
			i++
		}
	}
	assert.Equal(t, border.Total, i)
}

func TestPartitionWindowPositions(t *testing.T) {
	ws := border.Partition(1920, 1080)
	g := border.NewGeometry(1920, 1080)

	byZone := map[border.Zone][]image.Rectangle{}
	for _, w := range ws {
		byZone[w.Zone] = append(byZone[w.Zone], w.Rect)
	}

	// right run climbs from the bottom
	right := byZone[border.Right]
	assert.Equal(t, image.Rect(1860, 1080-2*51, 1920, 1080-51), right[0])
	assert.Equal(t, image.Rect(1860, 1080-20*51, 1920, 1080-19*51), right[len(right)-1])

	// top run goes right to left
	top := byZone[border.Top]
	assert.Equal(t, image.Rect(1920-2*51, 0, 1920-51, 60), top[0])
	assert.Equal(t, image.Rect(1920-36*51, 0, 1920-35*51, 60), top[len(top)-1])

	// left run goes top to bottom
	left := byZone[border.Left]
	assert.Equal(t, image.Rect(0, 51, 60, 102), left[0])
	assert.Equal(t, image.Rect(0, 19*51, 60, 20*51), left[len(left)-1])

	// bottom-left run goes left to right starting one pitch in
	bl := byZone[border.BottomLeft]
	assert.Equal(t, image.Rect(51, 1020, 102, 1080), bl[0])
	assert.Equal(t, image.Rect(6*51, 1020, 7*51, 1080), bl[len(bl)-1])

	for _, w := range ws {
		assert.Equal(t, w.Rect, w.Rect.Intersect(image.Rect(0, 0, g.Width, g.Height)), "%s[%d] out of bounds", w.Zone, w.Slot)
	}
}

func TestWindowsWithinZoneAreDisjoint(t *testing.T) {
	for _, size := range [][2]int{{1920, 1080}, {2560, 1440}, {3440, 1440}, {1280, 1024}} {
		ws := border.Partition(size[0], size[1])

		for i := range ws {
			for j := i + 1; j < len(ws); j++ {
				if ws[i].Zone != ws[j].Zone {
					continue
				}
				assert.False(t, ws[i].Rect.Overlaps(ws[j].Rect), "%v: %s slots %d and %d overlap", size, ws[i].Zone, ws[i].Slot, ws[j].Slot)
			}
		}
	}
}

func TestTopRunKeepsMarginFromCorners(t *testing.T) {
	for _, size := range [][2]int{{1920, 1080}, {2560, 1440}, {3440, 1440}, {1280, 1024}} {
		g := border.NewGeometry(size[0], size[1])
		ws := g.Windows()

		for _, w := range ws {
			if w.Zone != border.Top {
				continue
			}
			assert.GreaterOrEqual(t, w.Rect.Min.X, g.HorizontalPitch, "%v: top[%d]", size, w.Slot)
			assert.LessOrEqual(t, w.Rect.Max.X, g.Width-g.HorizontalPitch, "%v: top[%d]", size, w.Slot)
			for _, o := range ws {
				if o.Zone == border.BottomRight || o.Zone == border.BottomLeft {
					assert.False(t, w.Rect.Overlaps(o.Rect), "%v: top[%d] overlaps %s[%d]", size, w.Slot, o.Zone, o.Slot)
				}
			}
		}
	}
}

func TestTinyImageStaysInBounds(t *testing.T) {
	for _, size := range [][2]int{{0, 0}, {1, 1}, {10, 10}, {36, 20}, {1, 1000}} {
		for _, w := range border.Partition(size[0], size[1]) {
			assert.GreaterOrEqual(t, w.Rect.Dx(), 0)
			assert.GreaterOrEqual(t, w.Rect.Dy(), 0)
		}
	}
}

func TestZoneCounts(t *testing.T) {
	sum := 0
	for _, z := range border.Zones {
		sum += z.Count()
	}
	assert.Equal(t, border.Total, sum)
	assert.Equal(t, 85, border.Total)
	assert.Equal(t, "top", border.Top.String())
}
