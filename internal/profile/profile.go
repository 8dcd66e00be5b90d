package profile

import (
    "encoding/json"
    "fmt"
    "math"
    "sort"

    "github.com/local/layoutengine/internal/element"
)

// Topology classifies how a page arranges its anchors.
type Topology int

const (
    SingleColumn Topology = iota
    TwoColumn
    Mixed
    HorizontalSplit
)

var topologyNames = map[Topology]string{
    SingleColumn:    "single_column",
    TwoColumn:       "two_column",
    Mixed:           "mixed",
    HorizontalSplit: "horizontal_split",
}

func (t Topology) String() string {
    if n, ok := topologyNames[t]; ok { return n }
    return "single_column"
}

func (t Topology) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *Topology) UnmarshalJSON(data []byte) error {
    var s string
    if err := json.Unmarshal(data, &s); err != nil {
        return fmt.Errorf("topology: %w", err)
    }
    for k, n := range topologyNames {
        if n == s {
            *t = k
            return nil
        }
    }
    *t = SingleColumn
    return nil
}

// Profile holds the distributional statistics computed once per page. It is
// read-only after Compute and feeds strategy selection and partitioning.
type Profile struct {
    PageWidth  float64  `json:"page_width"`
    PageHeight float64  `json:"page_height"`
    Topology   Topology `json:"topology"`

    // ConsistencyScore maps the anchor X standard deviation to 0..1, where 1
    // means all anchors share one left edge.
    ConsistencyScore float64 `json:"consistency_score"`
    AnchorXStdDev    float64 `json:"anchor_x_stddev"`

    // AdjacencyRatio is the fraction of anchors with a same-row child.
    AdjacencyRatio float64 `json:"adjacency_ratio"`

    AnchorCount    int     `json:"anchor_count"`
    AnchorYVariance float64 `json:"anchor_y_variance"`

    // SeparatorY is the Y of a detected full-width horizontal separator;
    // meaningful only when Topology is HorizontalSplit.
    SeparatorY float64 `json:"separator_y,omitempty"`

    // ColumnSplitX is the boundary between columns; meaningful only when
    // Topology is TwoColumn or Mixed.
    ColumnSplitX float64 `json:"column_split_x,omitempty"`
}

// Options are the tunable constants of the profiler.
type Options struct {
    // RowBandPx is the vertical band within which an anchor and a child are
    // considered on the same row.
    RowBandPx float64
    // SeparatorMinWidthFrac is the fraction of page width an element must
    // span to count as a full-width separator.
    SeparatorMinWidthFrac float64
    // TwoColumnVarianceGain requires the k=2 within-cluster variance to be
    // at most this fraction of the k=1 variance before two columns win.
    TwoColumnVarianceGain float64
    // MinColumnSeparationFrac is the minimal distance between the two
    // cluster means, as a fraction of page width.
    MinColumnSeparationFrac float64
}

func DefaultOptions() Options {
    return Options{
        RowBandPx:               18,
        SeparatorMinWidthFrac:   0.85,
        TwoColumnVarianceGain:   0.35,
        MinColumnSeparationFrac: 0.22,
    }
}

// Compute derives the page profile from the raw element batch. Degenerate
// input (no anchors) yields a single-column profile with zero ratios; the
// profiler has no other failure modes.
func Compute(els []element.Element, opts Options) Profile {
    p := Profile{Topology: SingleColumn}

    for _, el := range els {
        if el.Box.X2 > p.PageWidth { p.PageWidth = el.Box.X2 }
        if el.Box.Y2 > p.PageHeight { p.PageHeight = el.Box.Y2 }
    }

    var anchors []element.Element
    for _, el := range els {
        if el.Class.IsAnchor() {
            anchors = append(anchors, el)
        }
    }
    p.AnchorCount = len(anchors)
    if len(anchors) == 0 {
        return p
    }

    xs := make([]float64, len(anchors))
    ys := make([]float64, len(anchors))
    for i, a := range anchors {
        xs[i] = a.Box.CenterX()
        ys[i] = a.Box.CenterY()
    }
    p.AnchorXStdDev = math.Sqrt(variance(xs))
    p.AnchorYVariance = variance(ys)
    p.ConsistencyScore = consistency(p.AnchorXStdDev, p.PageWidth)
    p.AdjacencyRatio = adjacencyRatio(anchors, els, opts.RowBandPx)

    if sepY, ok := findSeparator(els, p.PageWidth, opts.SeparatorMinWidthFrac); ok {
        p.Topology = HorizontalSplit
        p.SeparatorY = sepY
        return p
    }

    splitX, twoCol := detectColumns(xs, p.PageWidth, opts)
    if !twoCol {
        return p
    }
    p.ColumnSplitX = splitX

    // Two clean clusters overall can still be a mixed page: cluster the top
    // and bottom halves separately and compare the verdicts.
    midY := p.PageHeight / 2
    var topXs, botXs []float64
    for i, a := range anchors {
        if a.Box.CenterY() < midY {
            topXs = append(topXs, xs[i])
        } else {
            botXs = append(botXs, xs[i])
        }
    }
    _, topTwo := detectColumns(topXs, p.PageWidth, opts)
    _, botTwo := detectColumns(botXs, p.PageWidth, opts)
    if len(topXs) >= 4 && len(botXs) >= 4 && topTwo != botTwo {
        p.Topology = Mixed
    } else {
        p.Topology = TwoColumn
    }
    return p
}

func variance(vals []float64) float64 {
    if len(vals) == 0 { return 0 }
    mean := 0.0
    for _, v := range vals {
        mean += v
    }
    mean /= float64(len(vals))
    sum := 0.0
    for _, v := range vals {
        d := v - mean
        sum += d * d
    }
    return sum / float64(len(vals))
}

// consistency maps the X standard deviation onto 0..1 relative to page
// width: stddev 0 scores 1, stddev >= 25% of the page scores 0.
func consistency(stddev, pageWidth float64) float64 {
    if pageWidth <= 0 { return 0 }
    s := 1 - stddev/(pageWidth*0.25)
    if s < 0 { return 0 }
    if s > 1 { return 1 }
    return s
}

func adjacencyRatio(anchors, els []element.Element, band float64) float64 {
    if len(anchors) == 0 { return 0 }
    adjacent := 0
    for _, a := range anchors {
        for _, el := range els {
            if el.Class.IsAnchor() { continue }
            if math.Abs(el.Box.Y1-a.Box.Y1) <= band && el.Box.X1 >= a.Box.X1 {
                adjacent++
                break
            }
        }
    }
    return float64(adjacent) / float64(len(anchors))
}

// findSeparator looks for an explicit separator element or any flat element
// spanning most of the page width.
func findSeparator(els []element.Element, pageWidth, minFrac float64) (float64, bool) {
    for _, el := range els {
        wide := pageWidth > 0 && el.Box.Width() >= pageWidth*minFrac
        flat := el.Box.Height() <= el.Box.Width()*0.05
        if el.Class == element.ClassSeparator && wide {
            return el.Box.CenterY(), true
        }
        if wide && flat {
            return el.Box.CenterY(), true
        }
    }
    return 0, false
}

// detectColumns runs the k=1 vs k=2 comparison over anchor X-centers. The
// two-cluster split point is chosen along the sorted values at the position
// minimizing total within-cluster variance.
func detectColumns(xs []float64, pageWidth float64, opts Options) (float64, bool) {
    if len(xs) < 4 || pageWidth <= 0 {
        return 0, false
    }
    sorted := make([]float64, len(xs))
    copy(sorted, xs)
    sort.Float64s(sorted)

    k1 := variance(sorted)
    if k1 == 0 {
        return 0, false
    }

    bestVar := math.MaxFloat64
    bestIdx := -1
    for i := 1; i < len(sorted); i++ {
        v := variance(sorted[:i]) + variance(sorted[i:])
        if v < bestVar {
            bestVar = v
            bestIdx = i
        }
    }
    if bestIdx <= 0 {
        return 0, false
    }

    left := sorted[:bestIdx]
    right := sorted[bestIdx:]
    sep := mean(right) - mean(left)
    if bestVar > k1*opts.TwoColumnVarianceGain {
        return 0, false
    }
    if sep < pageWidth*opts.MinColumnSeparationFrac {
        return 0, false
    }
    // Boundary at the right cluster's leftmost center; the partitioner backs
    // it off by the configured margin so the cut never bisects a child.
    return right[0], true
}

func mean(vals []float64) float64 {
    if len(vals) == 0 { return 0 }
    s := 0.0
    for _, v := range vals {
        s += v
    }
    return s / float64(len(vals))
}
