package partition

import (
    "math"
    "sort"

    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/element"
)

// assignRegion is the single-column base case: three passes over the
// children of one region.
//
// Pass 1 pins each child to a same-row anchor (horizontal adjacency).
// Pass 2 assigns the rest by weighted 2D distance, never upward.
// Pass 3 re-evaluates large visual elements against following anchors.
func (p *Partitioner) assignRegion(els []element.Element) Result {
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
        // no anchors in this region: everything is an orphan, not an error
        return Result{Orphans: children}
    }

    sort.Slice(anchors, func(i, j int) bool {
        return anchors[i].Box.Y1 < anchors[j].Box.Y1
    })
    groups := make([]*element.Group, len(anchors))
    for i, a := range anchors {
        groups[i] = element.NewGroup(a)
    }

    owner := make([]int, len(children)) // index into groups, -1 = unassigned
    for i := range owner {
        owner[i] = -1
    }

    // pass 1: same-row adjacency
    for ci, c := range children {
        best, bestDx := -1, math.MaxFloat64
        for ai, a := range anchors {
            if math.Abs(a.Box.Y1-c.Box.Y1) > p.cfg.RowBandPx { continue }
            if c.Box.X1 < a.Box.X1 { continue }
            dx := c.Box.X1 - a.Box.X1
            if dx < bestDx {
                bestDx = dx
                best = ai
            }
        }
        if best >= 0 {
            owner[ci] = best
        }
    }

    // pass 2: weighted 2D distance; a child strictly above its candidate
    // anchor is never assigned to it
    var orphans []element.Element
    for ci, c := range children {
        if owner[ci] >= 0 { continue }
        best, bestDist := -1, math.MaxFloat64
        for ai, a := range anchors {
            if c.Box.CenterY() < a.Box.Y1 { continue }
            dy := c.Box.CenterY() - a.Box.CenterY()
            dx := (c.Box.CenterX() - a.Box.CenterX()) * p.cfg.ProximityXWeight
            d := math.Sqrt(dy*dy + dx*dx)
            if d < bestDist {
                bestDist = d
                best = ai
            }
        }
        if best < 0 {
            // above every anchor in the region: header/footer candidate
            orphans = append(orphans, c)
            continue
        }
        owner[ci] = best
    }

    // pass 3: lookahead for large visual elements
    for ci, c := range children {
        oi := owner[ci]
        if oi < 0 { continue }
        if !c.Class.IsVisual() && c.Box.Area() < p.cfg.LargeElementAreaPx2 { continue }
        cur := math.Abs(c.Box.CenterY() - anchors[oi].Box.CenterY())
        best, bestDy := oi, cur
        for k := 1; k <= p.cfg.LookaheadMaxGroups && oi+k < len(anchors); k++ {
            dy := math.Abs(c.Box.CenterY() - anchors[oi+k].Box.CenterY())
            // <= prefers the later anchor on a tie
            if dy <= bestDy {
                bestDy = dy
                best = oi + k
            }
        }
        if best != oi {
            log.Debug().
                Str("element", c.ID).
                Int("from", anchors[oi].Number).
                Int("to", anchors[best].Number).
                Msg("lookahead reassigned large element")
            owner[ci] = best
        }
    }

    for ci, c := range children {
        if owner[ci] >= 0 {
            groups[owner[ci]].Append(c)
        }
    }
    return Result{Groups: groups, Orphans: orphans}
}
