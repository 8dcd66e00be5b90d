package geometry

import "math"

// Box is an axis-aligned bounding box in page pixel coordinates.
// Invariant for a well-formed box: X2 > X1 and Y2 > Y1, all >= 0.
type Box struct {
    X1 float64 `json:"x1"`
    Y1 float64 `json:"y1"`
    X2 float64 `json:"x2"`
    Y2 float64 `json:"y2"`
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns 0 for degenerate boxes instead of a negative value.
func (b Box) Area() float64 {
    w, h := b.Width(), b.Height()
    if w <= 0 || h <= 0 { return 0 }
    return w * h
}

// Valid reports whether the box satisfies the coordinate invariants.
func (b Box) Valid() bool {
    return b.X1 >= 0 && b.Y1 >= 0 && b.X2 > b.X1 && b.Y2 > b.Y1
}

func (b Box) CenterX() float64 { return (b.X1 + b.X2) / 2 }
func (b Box) CenterY() float64 { return (b.Y1 + b.Y2) / 2 }

// Union returns the minimal box containing both operands.
func (b Box) Union(o Box) Box {
    return Box{
        X1: math.Min(b.X1, o.X1),
        Y1: math.Min(b.Y1, o.Y1),
        X2: math.Max(b.X2, o.X2),
        Y2: math.Max(b.Y2, o.Y2),
    }
}

// Intersect returns the overlapping region and whether it is non-empty.
func (b Box) Intersect(o Box) (Box, bool) {
    r := Box{
        X1: math.Max(b.X1, o.X1),
        Y1: math.Max(b.Y1, o.Y1),
        X2: math.Min(b.X2, o.X2),
        Y2: math.Min(b.Y2, o.Y2),
    }
    if r.X2 <= r.X1 || r.Y2 <= r.Y1 { return Box{}, false }
    return r, true
}

// OverlapArea returns the intersection area, 0 when disjoint.
func (b Box) OverlapArea(o Box) float64 {
    r, ok := b.Intersect(o)
    if !ok { return 0 }
    return r.Area()
}

// IoU is intersection area over union area. Two empty boxes yield 0.
func (b Box) IoU(o Box) float64 {
    inter := b.OverlapArea(o)
    if inter <= 0 { return 0 }
    union := b.Area() + o.Area() - inter
    if union <= 0 { return 0 }
    return inter / union
}

// Contains reports whether point (x, y) lies inside the box (edges inclusive).
func (b Box) Contains(x, y float64) bool {
    return x >= b.X1 && x <= b.X2 && y >= b.Y1 && y <= b.Y2
}

// ContainsBox reports whether o lies entirely inside the box.
func (b Box) ContainsBox(o Box) bool {
    return o.X1 >= b.X1 && o.X2 <= b.X2 && o.Y1 >= b.Y1 && o.Y2 <= b.Y2
}

// ApproxEqual compares boxes coordinate-wise within tol. Geometry is the only
// stable element identity across rename/copy, so correction matches boxes
// this way rather than by pointer.
func (b Box) ApproxEqual(o Box, tol float64) bool {
    return math.Abs(b.X1-o.X1) <= tol &&
        math.Abs(b.Y1-o.Y1) <= tol &&
        math.Abs(b.X2-o.X2) <= tol &&
        math.Abs(b.Y2-o.Y2) <= tol
}

// UnionAll folds Union over a non-empty set; ok is false for an empty input.
func UnionAll(boxes []Box) (Box, bool) {
    if len(boxes) == 0 { return Box{}, false }
    u := boxes[0]
    for _, b := range boxes[1:] {
        u = u.Union(b)
    }
    return u, true
}
