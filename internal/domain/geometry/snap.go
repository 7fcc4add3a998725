package geometry

import "math"

// cellCenter returns the pixel-space center of grid cell (col,row) on a
// page with the given grid size, with cell (0,0) occupying [0,gridSize).
func cellCenter(col, row int, gridSize float64) Point {
	return Point{
		X: (float64(col) + 0.5) * gridSize,
		Y: (float64(row) + 0.5) * gridSize,
	}
}

// cellOf returns the (col,row) of the cell containing p.
func cellOf(p Point, gridSize float64) (int, int) {
	if gridSize == 0 {
		return 0, 0
	}
	return int(math.Floor(p.X / gridSize)), int(math.Floor(p.Y / gridSize))
}

// SnapIntersection implements the "intersection" position mode of §4.1:
// among the 3x3 neighborhood of the cell containing raw, pick the cell
// center that lies inside the trap's OBB and minimizes distance to raw.
// Falls back to the naive floor-snap of raw if no neighbor qualifies.
func SnapIntersection(raw Point, obb Rect, gridSize float64) Point {
	col, row := cellOf(raw, gridSize)

	var (
		best    Point
		found   bool
		bestDst float64
		bestRow, bestCol int
	)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			c, r := col+dc, row+dr
			center := cellCenter(c, r, gridSize)
			if !PointInOBB(center, obb) {
				continue
			}
			d := Distance(center, raw)
			if !found || d < bestDst || (d == bestDst && lexLess(r, c, bestRow, bestCol)) {
				best, bestDst, found = center, d, true
				bestRow, bestCol = r, c
			}
		}
	}
	if found {
		return best
	}
	return cellCenter(col, row, gridSize)
}

// lexLess reports whether (r1,c1) sorts before (r2,c2) in row-major order,
// used to break exact distance ties per §4.1.
func lexLess(r1, c1, r2, c2 int) bool {
	if r1 != r2 {
		return r1 < r2
	}
	return c1 < c2
}

// neighborOffsets is the fixed retry order for occupied-cell resolution:
// self, E, W, S, N, SE, NW, SW, NE.
var neighborOffsets = [9][2]int{
	{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {-1, -1}, {-1, 1}, {1, -1},
}

// SnapCenter implements the "center" position mode: the cell nearest the
// trap center, retried through its 8 neighbors in the fixed order above if
// occupied reports true for a candidate.
func SnapCenter(obb Rect, gridSize float64, occupied func(Point) bool) Point {
	col, row := cellOf(obb.Center, gridSize)
	for _, off := range neighborOffsets {
		center := cellCenter(col+off[0], row+off[1], gridSize)
		if occupied == nil || !occupied(center) {
			return center
		}
	}
	return cellCenter(col, row, gridSize)
}

// SnapCell implements the fixed {cellX,cellY} position mode: the
// corresponding cell within the trap's OBB, clamped to its cell extents,
// then retried through the same occupancy order as SnapCenter.
func SnapCell(obb Rect, cellX, cellY int, gridSize float64, occupied func(Point) bool) Point {
	corners := obb.Corners()
	minX, maxX := corners[0].X, corners[0].X
	minY, maxY := corners[0].Y, corners[0].Y
	for _, c := range corners[1:] {
		minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
		minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
	}
	minCol, minRow := cellOf(Point{minX, minY}, gridSize)
	maxCol, maxRow := cellOf(Point{maxX, maxY}, gridSize)

	col := clampInt(cellX, minCol, maxCol)
	row := clampInt(cellY, minRow, maxRow)

	for _, off := range neighborOffsets {
		c, r := col+off[0], row+off[1]
		if c < minCol || c > maxCol || r < minRow || r > maxRow {
			continue
		}
		center := cellCenter(c, r, gridSize)
		if occupied == nil || !occupied(center) {
			return center
		}
	}
	return cellCenter(col, row, gridSize)
}

func clampInt(v, lo, hi int) int {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
