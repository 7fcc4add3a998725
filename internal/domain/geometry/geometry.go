// Package geometry implements the oriented-bounding-box math the trap
// engine uses to decide whether a moving token crossed or landed inside a
// trap, and where it should snap to once it has.
package geometry

import "math"

// DefaultMinMovementFraction is the fraction of a grid cell below which a
// move is treated as jitter and never triggers a trap.
const DefaultMinMovementFraction = 0.3

// Point is a pixel-space coordinate on the map.
type Point struct {
	X, Y float64
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Rect is an oriented bounding box: a center, full width/height in pixels,
// and a rotation in degrees (clockwise, matching the host's convention).
type Rect struct {
	Center   Point
	Width    float64
	Height   float64
	Rotation float64
}

// Rotate rotates p around the origin by degrees (clockwise, matching the
// host's rotation convention). Exported for components (e.g. the Lock
// Registry) that need to reproject an offset through a trap's new rotation.
func Rotate(p Point, degrees float64) Point {
	return rotate(p, degrees)
}

// rotate rotates p around the origin by degrees.
func rotate(p Point, degrees float64) Point {
	r := degrees * math.Pi / 180
	sin, cos := math.Sin(r), math.Cos(r)
	return Point{
		X: p.X*cos - p.Y*sin,
		Y: p.X*sin + p.Y*cos,
	}
}

// Corners returns the four corners of the OBB in TL, TR, BR, BL order.
func (r Rect) Corners() [4]Point {
	hw, hh := r.Width/2, r.Height/2
	local := [4]Point{
		{-hw, -hh}, // TL
		{hw, -hh},  // TR
		{hw, hh},   // BR
		{-hw, hh},  // BL
	}
	var out [4]Point
	for i, c := range local {
		out[i] = rotate(c, r.Rotation).Add(r.Center)
	}
	return out
}

// Distance returns the straight-line pixel distance between two points.
func Distance(a, b Point) float64 {
	d := a.Sub(b)
	return math.Hypot(d.X, d.Y)
}

// ToMapUnits converts a pixel distance to map units given a page's
// pixels-per-cell grid size and map-units-per-cell scale.
func ToMapUnits(pixels, scale, gridSize float64) float64 {
	if gridSize == 0 {
		return 0
	}
	return pixels * scale / gridSize
}

// segmentIntersect returns the intersection of segment p1->p2 with segment
// q1->q2, if one exists within both segments' bounds.
func segmentIntersect(p1, p2, q1, q2 Point) (Point, bool) {
	r := p2.Sub(p1)
	s := q2.Sub(q1)
	denom := r.X*s.Y - r.Y*s.X
	if denom == 0 {
		return Point{}, false // parallel or collinear
	}
	qp := q1.Sub(p1)
	t := (qp.X*s.Y - qp.Y*s.X) / denom
	u := (qp.X*r.Y - qp.Y*r.X) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return p1.Add(r.Scale(t)), true
}

// SegmentsIntersect reports whether segment p1->p2 crosses segment q1->q2,
// for line-of-sight blocking tests against wall/door/path segments.
func SegmentsIntersect(p1, p2, q1, q2 Point) (Point, bool) {
	return segmentIntersect(p1, p2, q1, q2)
}

// SegmentOBBIntersect tests the moving segment prev->curr against each edge
// of the trap's OBB and returns the intersection point nearest the
// segment's start (prev). Moves shorter than minMovementFraction*gridSize
// are reported as no intersection to suppress micro-jitter.
func SegmentOBBIntersect(prev, curr Point, obb Rect, gridSize float64, minMovementFraction float64) (Point, bool) {
	if minMovementFraction <= 0 {
		minMovementFraction = DefaultMinMovementFraction
	}
	if Distance(prev, curr) < minMovementFraction*gridSize {
		return Point{}, false
	}

	corners := obb.Corners()
	var (
		best    Point
		found   bool
		bestDst float64
	)
	for i := 0; i < 4; i++ {
		a := corners[i]
		b := corners[(i+1)%4]
		if pt, ok := segmentIntersect(prev, curr, a, b); ok {
			d := Distance(prev, pt)
			if !found || d < bestDst {
				best, bestDst, found = pt, d, true
			}
		}
	}
	return best, found
}

// PointInOBB reports whether p lies inside the oriented bounding box,
// by projecting p onto the two edge vectors from the TL corner and
// checking both projections fall within their edge lengths.
func PointInOBB(p Point, obb Rect) bool {
	corners := obb.Corners()
	tl, tr, bl := corners[0], corners[1], corners[3]

	edgeX := tr.Sub(tl) // TL -> TR
	edgeY := bl.Sub(tl) // TL -> BL
	rel := p.Sub(tl)

	lenX2 := edgeX.X*edgeX.X + edgeX.Y*edgeX.Y
	lenY2 := edgeY.X*edgeY.X + edgeY.Y*edgeY.Y
	if lenX2 == 0 || lenY2 == 0 {
		return false
	}

	projX := (rel.X*edgeX.X + rel.Y*edgeX.Y) / lenX2
	projY := (rel.X*edgeY.X + rel.Y*edgeY.Y) / lenY2

	return projX >= 0 && projX <= 1 && projY >= 0 && projY <= 1
}

// AABBOverlapFraction returns the fraction of the mover's axis-aligned
// bounding box area that overlaps the trap's AABB (the bounding box of its
// rotated OBB). Used as the grid-overlap trigger fallback in §4.5 step 3.
func AABBOverlapFraction(moverCenter Point, moverW, moverH float64, trap Rect) float64 {
	moverMinX, moverMaxX := moverCenter.X-moverW/2, moverCenter.X+moverW/2
	moverMinY, moverMaxY := moverCenter.Y-moverH/2, moverCenter.Y+moverH/2

	corners := trap.Corners()
	trapMinX, trapMaxX := corners[0].X, corners[0].X
	trapMinY, trapMaxY := corners[0].Y, corners[0].Y
	for _, c := range corners[1:] {
		trapMinX, trapMaxX = math.Min(trapMinX, c.X), math.Max(trapMaxX, c.X)
		trapMinY, trapMaxY = math.Min(trapMinY, c.Y), math.Max(trapMaxY, c.Y)
	}

	overlapX := math.Min(moverMaxX, trapMaxX) - math.Max(moverMinX, trapMinX)
	overlapY := math.Min(moverMaxY, trapMaxY) - math.Max(moverMinY, trapMinY)
	if overlapX <= 0 || overlapY <= 0 {
		return 0
	}

	moverArea := moverW * moverH
	if moverArea == 0 {
		return 0
	}
	return (overlapX * overlapY) / moverArea
}
