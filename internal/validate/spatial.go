package validate

import (
    "sort"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/geometry"
)

// RangeConflict records two groups whose bounding envelopes overlap enough
// to suggest cross-group contamination.
type RangeConflict struct {
    GroupA      int     `json:"group_a"`
    GroupB      int     `json:"group_b"`
    IoU         float64 `json:"iou"`
    OverlapArea float64 `json:"overlap_area"`
    // ElementsA are children of A intruding into B's envelope; B's
    // intruders into A are in ElementsB. The full elements are carried so
    // correction can relocate them by bounding box.
    ElementsA []element.Element `json:"elements_a,omitempty"`
    ElementsB []element.Element `json:"elements_b,omitempty"`
    Severe    bool              `json:"severe"`
}

// SpatialOptions carries the conflict thresholds.
type SpatialOptions struct {
    // IoUThreshold is the envelope IoU above which a pair conflicts.
    IoUThreshold float64
    // SevereOverlapAreaPx2 flags conflicts above this absolute overlap area.
    SevereOverlapAreaPx2 float64
    // IntrusionFrac is the fraction of an element's own area that must lie
    // inside the other envelope before the element counts as contributing.
    IntrusionFrac float64
}

func DefaultSpatialOptions() SpatialOptions {
    return SpatialOptions{
        IoUThreshold:         0.1,
        SevereOverlapAreaPx2: 10000,
        IntrusionFrac:        0.5,
    }
}

// CheckSpatial computes pairwise envelope IoU over the group collection.
// O(n^2) on tens of groups per page.
func CheckSpatial(groups element.GroupMap, opts SpatialOptions) []RangeConflict {
    if opts.IoUThreshold <= 0 { opts.IoUThreshold = 0.1 }
    if opts.SevereOverlapAreaPx2 <= 0 { opts.SevereOverlapAreaPx2 = 10000 }
    if opts.IntrusionFrac <= 0 { opts.IntrusionFrac = 0.5 }

    ids := groups.SortedNumbers()
    var conflicts []RangeConflict
    for i := 0; i < len(ids); i++ {
        for j := i + 1; j < len(ids); j++ {
            a, b := groups[ids[i]], groups[ids[j]]
            envA, envB := a.Envelope(), b.Envelope()
            iou := envA.IoU(envB)
            if iou <= opts.IoUThreshold {
                continue
            }
            overlap := envA.OverlapArea(envB)
            c := RangeConflict{
                GroupA:      ids[i],
                GroupB:      ids[j],
                IoU:         iou,
                OverlapArea: overlap,
                Severe:      overlap > opts.SevereOverlapAreaPx2,
            }
            for _, el := range a.Children {
                if intrudes(el, envB, opts.IntrusionFrac) {
                    c.ElementsA = append(c.ElementsA, el)
                }
            }
            for _, el := range b.Children {
                if intrudes(el, envA, opts.IntrusionFrac) {
                    c.ElementsB = append(c.ElementsB, el)
                }
            }
            conflicts = append(conflicts, c)
        }
    }
    sort.Slice(conflicts, func(i, j int) bool {
        return conflicts[i].OverlapArea > conflicts[j].OverlapArea
    })
    return conflicts
}

// intrudes tests the element's own box against the other group's envelope:
// it contributes to the conflict when at least frac of its area overlaps.
func intrudes(el element.Element, env geometry.Box, frac float64) bool {
    area := el.Box.Area()
    if area <= 0 { return false }
    return el.Box.OverlapArea(env)/area >= frac
}
