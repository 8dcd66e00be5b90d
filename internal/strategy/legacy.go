package strategy

import (
    "math"
    "sort"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/partition"
    "github.com/local/layoutengine/internal/profile"
)

// LegacyLocal is the simpler adjacency-first variant: median column split,
// nearest-anchor-above fallback, no weighted-distance pass, no lookahead.
// It tolerates noisy or handwritten input where anchor coordinates drift.
type LegacyLocal struct {
    rowBand float64
}

func NewLegacyLocal(rowBandPx float64) *LegacyLocal {
    if rowBandPx <= 0 { rowBandPx = 18 }
    return &LegacyLocal{rowBand: rowBandPx}
}

func (l *LegacyLocal) Name() string { return NameLegacy }

func (l *LegacyLocal) Assign(els []element.Element, prof profile.Profile) partition.Result {
    usable := make([]element.Element, 0, len(els))
    for _, el := range els {
        if el.Box.Area() > 0 {
            usable = append(usable, el)
        }
    }
    if len(usable) == 0 {
        return partition.Result{}
    }

    switch prof.Topology {
    case profile.TwoColumn, profile.Mixed:
        medianX := medianAnchorX(usable)
        var left, right []element.Element
        for _, el := range usable {
            if el.Box.CenterX() < medianX {
                left = append(left, el)
            } else {
                right = append(right, el)
            }
        }
        lres := l.assignColumn(left)
        rres := l.assignColumn(right)
        return partition.Result{
            Groups:  append(lres.Groups, rres.Groups...),
            Orphans: append(lres.Orphans, rres.Orphans...),
        }
    default:
        return l.assignColumn(usable)
    }
}

// assignColumn pins same-row children first, then hands each remaining child
// to the nearest anchor whose top edge is above the child.
func (l *LegacyLocal) assignColumn(els []element.Element) partition.Result {
    var anchors []element.Anchor
    var children []element.Element
    for _, el := range els {
        if el.Class.IsAnchor() {
            anchors = append(anchors, element.NewAnchor(el))
        } else {
            children = append(children, el)
        }
    }
    if len(anchors) == 0 {
        return partition.Result{Orphans: children}
    }
    sort.Slice(anchors, func(i, j int) bool {
        return anchors[i].Box.Y1 < anchors[j].Box.Y1
    })
    groups := make([]*element.Group, len(anchors))
    for i, a := range anchors {
        groups[i] = element.NewGroup(a)
    }

    var orphans []element.Element
    for _, c := range children {
        if ai, ok := l.sameRow(anchors, c); ok {
            groups[ai].Append(c)
            continue
        }
        best, bestDy := -1, math.MaxFloat64
        for ai, a := range anchors {
            if a.Box.Y1 > c.Box.Y1 { continue } // only anchors above
            dy := c.Box.Y1 - a.Box.Y1
            if dy < bestDy {
                bestDy = dy
                best = ai
            }
        }
        if best < 0 {
            orphans = append(orphans, c)
            continue
        }
        groups[best].Append(c)
    }
    return partition.Result{Groups: groups, Orphans: orphans}
}

func (l *LegacyLocal) sameRow(anchors []element.Anchor, c element.Element) (int, bool) {
    best, bestDx := -1, math.MaxFloat64
    for ai, a := range anchors {
        if math.Abs(a.Box.Y1-c.Box.Y1) > l.rowBand { continue }
        if c.Box.X1 < a.Box.X1 { continue }
        if dx := c.Box.X1 - a.Box.X1; dx < bestDx {
            bestDx = dx
            best = ai
        }
    }
    return best, best >= 0
}

func medianAnchorX(els []element.Element) float64 {
    var xs []float64
    for _, el := range els {
        if el.Class.IsAnchor() {
            xs = append(xs, el.Box.CenterX())
        }
    }
    if len(xs) == 0 { return 0 }
    sort.Float64s(xs)
    mid := len(xs) / 2
    if len(xs)%2 == 1 {
        return xs[mid]
    }
    return (xs[mid-1] + xs[mid]) / 2
}
