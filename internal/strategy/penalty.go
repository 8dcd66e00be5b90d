package strategy

import (
    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/partition"
    "github.com/local/layoutengine/internal/profile"
)

// Penalty weights. Lower total is better; hybrid keeps the cheaper result.
const (
    penaltyAnchorlessGroup   = 5.0
    penaltyChildlessAnchor   = 1.0
    penaltyChildAboveAnchor  = 1.0
    penaltyChildOutsideColumn = 0.5
    penaltyGrouplessChild    = 2.0
    penaltyUnassignedAnchor  = 1.5
)

// Penalty scores an assignment result against the raw element batch. It is a
// pure function so competing strategies can be compared on equal footing.
func Penalty(els []element.Element, res partition.Result, prof profile.Profile) float64 {
    total := 0.0

    assignedAnchors := make(map[string]struct{}, len(res.Groups))
    for _, g := range res.Groups {
        if g.Anchor.ID == "" || !g.Anchor.Class.IsAnchor() {
            total += penaltyAnchorlessGroup
        } else {
            assignedAnchors[g.Anchor.ID] = struct{}{}
        }
        if len(g.Children) == 0 {
            total += penaltyChildlessAnchor
        }
        anchorSide := columnSide(g.Anchor.Box.CenterX(), prof)
        for _, c := range g.Children {
            if c.Box.CenterY() < g.Anchor.Box.Y1 {
                total += penaltyChildAboveAnchor
            }
            if prof.Topology == profile.TwoColumn && columnSide(c.Box.CenterX(), prof) != anchorSide {
                total += penaltyChildOutsideColumn
            }
        }
    }

    total += penaltyGrouplessChild * float64(len(res.Orphans))

    for _, el := range els {
        if !el.Class.IsAnchor() { continue }
        if _, ok := assignedAnchors[el.ID]; !ok {
            total += penaltyUnassignedAnchor
        }
    }
    return total
}

func columnSide(centerX float64, prof profile.Profile) int {
    if prof.ColumnSplitX <= 0 { return 0 }
    if centerX < prof.ColumnSplitX { return 0 }
    return 1
}
