package partition

import (
    "math"

    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/profile"
)

// Config holds the tunables of the spatial partitioner. The weights and
// windows are calibration constants, kept here instead of hard-coded so they
// can be re-tuned without touching the algorithm.
type Config struct {
    // WorksheetMode restricts input to the configured class allow-lists.
    WorksheetMode bool
    AnchorClasses element.ClassSet
    ChildClasses  element.ClassSet

    // ColumnGapMarginPx backs the column boundary off the right column's
    // leftmost anchor so the cut never bisects a child element.
    ColumnGapMarginPx float64

    // ProximityXWeight scales dx in the weighted 2D distance; Y dominates X.
    ProximityXWeight float64

    // LookaheadMaxGroups bounds how many following anchors a large visual
    // element is re-evaluated against.
    LookaheadMaxGroups int

    // RowBandPx is the vertical band for same-row adjacency in pass 1.
    RowBandPx float64

    // LargeElementAreaPx2 promotes a child into the lookahead pass by area
    // even when its class is not visual.
    LargeElementAreaPx2 float64

    // RowMajor interleaves multi-column output by row instead of emitting
    // the whole left column first.
    RowMajor bool

    ProfileOptions profile.Options
}

func DefaultConfig() Config {
    return Config{
        ColumnGapMarginPx:   10,
        ProximityXWeight:    0.2,
        LookaheadMaxGroups:  2,
        RowBandPx:           18,
        LargeElementAreaPx2: 40000,
        ProfileOptions:      profile.DefaultOptions(),
    }
}

// Result is an initial grouping: groups in reading order plus the orphan
// bucket. Orphans are elements that could not be attributed to any anchor
// (header/footer candidates); they are carried, never dropped.
type Result struct {
    Groups  []*element.Group
    Orphans []element.Element
}

// GroupMap keys the result by group identifier for the validators. Anchors
// whose identifier did not parse get distinct synthetic negative keys;
// duplicate parsed identifiers merge child lists, matching the rename-merge
// semantics of correction.
func (r Result) GroupMap() element.GroupMap {
    m := make(element.GroupMap, len(r.Groups))
    synthetic := element.UnparsedNumber
    for _, g := range r.Groups {
        id := g.Number
        if id == element.UnparsedNumber {
            for {
                if _, taken := m[synthetic]; !taken { break }
                synthetic--
            }
            id = synthetic
            synthetic--
        }
        if existing, ok := m[id]; ok {
            existing.Children = append(existing.Children, g.Children...)
            continue
        }
        cp := g.Clone()
        cp.Number = id
        m[id] = cp
    }
    return m
}

// TotalElements counts every element the result carries, orphans included.
func (r Result) TotalElements() int {
    n := len(r.Orphans)
    for _, g := range r.Groups {
        n += g.Size()
    }
    return n
}

// Partitioner turns a flat element batch into initial groups by recursive
// spatial splitting plus three-pass anchor-child assignment.
type Partitioner struct {
    cfg Config
}

func New(cfg Config) *Partitioner {
    if cfg.ProximityXWeight <= 0 { cfg.ProximityXWeight = 0.2 }
    if cfg.LookaheadMaxGroups <= 0 { cfg.LookaheadMaxGroups = 2 }
    if cfg.RowBandPx <= 0 { cfg.RowBandPx = 18 }
    if cfg.ColumnGapMarginPx <= 0 { cfg.ColumnGapMarginPx = 10 }
    if cfg.LargeElementAreaPx2 <= 0 { cfg.LargeElementAreaPx2 = 40000 }
    return &Partitioner{cfg: cfg}
}

// Partition runs preprocessing and the topology-directed recursion. Empty
// input degrades to an empty result, never an error.
func (p *Partitioner) Partition(els []element.Element, prof profile.Profile) Result {
    els = p.preprocess(els)
    if len(els) == 0 {
        return Result{}
    }
    return p.partitionRegion(els, prof)
}

// preprocess drops non-positive-area boxes and, in worksheet mode, classes
// outside the allow-lists.
func (p *Partitioner) preprocess(els []element.Element) []element.Element {
    out := make([]element.Element, 0, len(els))
    for _, el := range els {
        if el.Box.Area() <= 0 {
            log.Debug().Str("element", el.ID).Msg("dropping zero-area element")
            continue
        }
        if p.cfg.WorksheetMode {
            if el.Class.IsAnchor() {
                if !p.cfg.AnchorClasses.Has(el.Class) { continue }
            } else if !p.cfg.ChildClasses.Has(el.Class) {
                continue
            }
        }
        out = append(out, el)
    }
    return out
}

func (p *Partitioner) partitionRegion(els []element.Element, prof profile.Profile) Result {
    switch prof.Topology {
    case profile.HorizontalSplit:
        return p.splitHorizontal(els, prof)
    case profile.TwoColumn:
        return p.splitColumns(els, prof)
    case profile.Mixed:
        return p.splitMixed(els, prof)
    case profile.SingleColumn:
        return p.assignRegion(els)
    default:
        return p.assignRegion(els)
    }
}

// splitHorizontal cuts the region at the separator Y and recurses on each
// band with a freshly computed sub-profile.
func (p *Partitioner) splitHorizontal(els []element.Element, prof profile.Profile) Result {
    var top, bottom, sep []element.Element
    for _, el := range els {
        switch {
        case el.Class == element.ClassSeparator:
            sep = append(sep, el)
        case el.Box.CenterY() < prof.SeparatorY:
            top = append(top, el)
        default:
            bottom = append(bottom, el)
        }
    }
    res := p.recurse(top)
    bot := p.recurse(bottom)
    res.Groups = append(res.Groups, bot.Groups...)
    res.Orphans = append(res.Orphans, bot.Orphans...)
    // separators are decoration: carried in the orphan bucket
    res.Orphans = append(res.Orphans, sep...)
    return res
}

// splitMixed processes top and bottom halves independently, each falling
// back to the rules its own sub-profile selects.
func (p *Partitioner) splitMixed(els []element.Element, prof profile.Profile) Result {
    midY := prof.PageHeight / 2
    var top, bottom []element.Element
    for _, el := range els {
        if el.Box.CenterY() < midY {
            top = append(top, el)
        } else {
            bottom = append(bottom, el)
        }
    }
    res := p.recurse(top)
    bot := p.recurse(bottom)
    res.Groups = append(res.Groups, bot.Groups...)
    res.Orphans = append(res.Orphans, bot.Orphans...)
    return res
}

// recurse recomputes the profile for a sub-region and partitions it. A
// sub-region that again profiles as horizontal-split without a separator
// element cannot occur; mixed sub-regions degrade to single-column.
func (p *Partitioner) recurse(els []element.Element) Result {
    if len(els) == 0 {
        return Result{}
    }
    sub := profile.Compute(els, p.cfg.ProfileOptions)
    switch sub.Topology {
    case profile.TwoColumn:
        return p.splitColumns(els, sub)
    case profile.HorizontalSplit:
        return p.splitHorizontal(els, sub)
    default:
        return p.assignRegion(els)
    }
}

// splitColumns cuts left/right at the right column's leftmost anchor X minus
// the configured margin. Degenerate clusters fall back to single-column
// assignment instead of aborting.
func (p *Partitioner) splitColumns(els []element.Element, prof profile.Profile) Result {
    rightEdge := math.MaxFloat64
    leftAnchors, rightAnchors := 0, 0
    for _, el := range els {
        if !el.Class.IsAnchor() { continue }
        if el.Box.CenterX() >= prof.ColumnSplitX {
            rightAnchors++
            if el.Box.X1 < rightEdge { rightEdge = el.Box.X1 }
        } else {
            leftAnchors++
        }
    }
    if leftAnchors == 0 || rightAnchors == 0 {
        log.Warn().
            Int("left_anchors", leftAnchors).
            Int("right_anchors", rightAnchors).
            Float64("split_x", prof.ColumnSplitX).
            Msg("degenerate column cluster; falling back to single column")
        return p.assignRegion(els)
    }

    boundary := rightEdge - p.cfg.ColumnGapMarginPx
    var left, right []element.Element
    for _, el := range els {
        if el.Box.CenterX() < boundary {
            left = append(left, el)
        } else {
            right = append(right, el)
        }
    }

    lres := p.assignRegion(left)
    rres := p.assignRegion(right)

    res := Result{Orphans: append(lres.Orphans, rres.Orphans...)}
    if p.cfg.RowMajor {
        res.Groups = interleaveRows(lres.Groups, rres.Groups)
    } else {
        // column-major: the entire left column, then the entire right
        res.Groups = append(lres.Groups, rres.Groups...)
    }
    return res
}

// interleaveRows merges two column orderings by anchor Y for callers that
// request row-major reading order.
func interleaveRows(left, right []*element.Group) []*element.Group {
    out := make([]*element.Group, 0, len(left)+len(right))
    i, j := 0, 0
    for i < len(left) && j < len(right) {
        if left[i].Anchor.Box.Y1 <= right[j].Anchor.Box.Y1 {
            out = append(out, left[i])
            i++
        } else {
            out = append(out, right[j])
            j++
        }
    }
    out = append(out, left[i:]...)
    return append(out, right[j:]...)
}
