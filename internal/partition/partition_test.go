package partition

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/geometry"
    "github.com/local/layoutengine/internal/profile"
)

func anchor(num string, x, y float64) element.Element {
    return element.Element{
        ID: "a" + num, Class: element.ClassQuestionNumber, Text: num,
        Box: geometry.Box{X1: x, Y1: y, X2: x + 25, Y2: y + 20}, Confidence: 0.95,
    }
}

func child(id string, x, y, w, h float64) element.Element {
    return element.Element{
        ID: id, Class: element.ClassText,
        Box: geometry.Box{X1: x, Y1: y, X2: x + w, Y2: y + h}, Confidence: 0.9,
    }
}

func figure(id string, x, y, w, h float64) element.Element {
    el := child(id, x, y, w, h)
    el.Class = element.ClassFigure
    return el
}

func run(t *testing.T, cfg Config, els []element.Element) Result {
    t.Helper()
    prof := profile.Compute(els, cfg.ProfileOptions)
    return New(cfg).Partition(els, prof)
}

func groupByNumber(t *testing.T, res Result, num int) *element.Group {
    t.Helper()
    for _, g := range res.Groups {
        if g.Number == num { return g }
    }
    t.Fatalf("no group %d", num)
    return nil
}

func childIDs(g *element.Group) []string {
    ids := make([]string, 0, len(g.Children))
    for _, c := range g.Children {
        ids = append(ids, c.ID)
    }
    return ids
}

func TestEmptyInputYieldsEmptyResult(t *testing.T) {
    res := run(t, DefaultConfig(), nil)
    assert.Empty(t, res.Groups)
    assert.Empty(t, res.Orphans)
}

func TestPreprocessDropsZeroAreaAndFiltersWorksheetClasses(t *testing.T) {
    cfg := DefaultConfig()
    cfg.WorksheetMode = true
    cfg.AnchorClasses = element.NewClassSet(element.ClassQuestionNumber)
    cfg.ChildClasses = element.NewClassSet(element.ClassText, element.ClassFigure)

    hand := child("hand", 80, 210, 100, 30)
    hand.Class = element.ClassHandwriting
    zero := child("zero", 10, 10, 0, 30)
    section := anchor("9", 40, 400)
    section.Class = element.ClassSectionUnit

    els := []element.Element{
        anchor("1", 40, 100), child("t1", 80, 102, 300, 30),
        anchor("2", 40, 200), hand, zero, section,
    }
    res := run(t, cfg, els)
    require.Len(t, res.Groups, 2)
    assert.Equal(t, []string{"t1"}, childIDs(groupByNumber(t, res, 1)))
    assert.Empty(t, groupByNumber(t, res, 2).Children)
    total := res.TotalElements()
    assert.Equal(t, 3, total) // 2 anchors + t1; hand, zero, section filtered
}

func TestPass1SameRowAdjacency(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100),
        child("t1", 80, 104, 400, 30), // same row as anchor 1
        anchor("2", 40, 300),
        child("t2", 80, 296, 400, 30), // same row as anchor 2
    }
    res := run(t, DefaultConfig(), els)
    require.Len(t, res.Groups, 2)
    assert.Equal(t, []string{"t1"}, childIDs(groupByNumber(t, res, 1)))
    assert.Equal(t, []string{"t2"}, childIDs(groupByNumber(t, res, 2)))
}

func TestPass2WeightedDistancePrefersYProximity(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100),
        anchor("2", 40, 400),
        // outside both row bands and far right; Y proximity must win over
        // the horizontal offset to anchor 2
        child("t1", 500, 430, 120, 30),
    }
    res := run(t, DefaultConfig(), els)
    assert.Equal(t, []string{"t1"}, childIDs(groupByNumber(t, res, 2)))
    assert.Empty(t, groupByNumber(t, res, 1).Children)
}

func TestChildAboveAllAnchorsBecomesOrphan(t *testing.T) {
    els := []element.Element{
        child("hdr", 200, 10, 300, 25), // page header above every anchor
        anchor("1", 40, 100),
        child("t1", 80, 150, 400, 30),
    }
    res := run(t, DefaultConfig(), els)
    require.Len(t, res.Orphans, 1)
    assert.Equal(t, "hdr", res.Orphans[0].ID)
    assert.Equal(t, []string{"t1"}, childIDs(groupByNumber(t, res, 1)))
}

func TestNoAnchorsAllChildrenOrphaned(t *testing.T) {
    els := []element.Element{
        child("t1", 10, 10, 100, 30),
        child("t2", 10, 60, 100, 30),
    }
    res := run(t, DefaultConfig(), els)
    assert.Empty(t, res.Groups)
    assert.Len(t, res.Orphans, 2)
}

// Scenario D: a figure much closer in Y to the next anchor is pulled forward
// within the lookahead window.
func TestLookaheadReassignsLargeElementForward(t *testing.T) {
    els := []element.Element{
        anchor("5", 40, 100),
        child("t5", 80, 104, 400, 30),
        figure("fig", 100, 330, 300, 120), // centerY 390
        anchor("6", 40, 420),              // centerY 430: |390-430|=40
        child("t6", 80, 424, 400, 30),     // anchor5 centerY 110: |390-110|=280
    }
    res := run(t, DefaultConfig(), els)
    assert.Equal(t, []string{"fig", "t6"}, childIDs(groupByNumber(t, res, 6)))
    assert.Equal(t, []string{"t5"}, childIDs(groupByNumber(t, res, 5)))
}

func TestLookaheadWindowIsBounded(t *testing.T) {
    cfg := DefaultConfig()
    cfg.LookaheadMaxGroups = 1
    els := []element.Element{
        anchor("1", 40, 100),
        figure("fig", 100, 150, 300, 100), // closest to anchor 3, two ahead
        anchor("2", 40, 180),
        anchor("3", 40, 260),
    }
    prof := profile.Compute(els, cfg.ProfileOptions)
    res := New(cfg).Partition(els, prof)
    // window of 1: may move to anchor 2 at most, never to anchor 3
    assert.Empty(t, groupByNumber(t, res, 3).Children)
}

func TestTwoColumnOrderingColumnMajor(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), child("t1", 80, 104, 300, 30),
        anchor("2", 40, 400), child("t2", 80, 404, 300, 30),
        anchor("3", 40, 700), child("t3", 80, 704, 300, 30),
        anchor("4", 620, 100), child("t4", 660, 104, 300, 30),
        anchor("5", 620, 400), child("t5", 660, 404, 300, 30),
        anchor("6", 620, 700), child("t6", 660, 704, 300, 30),
        child("page", 0, 0, 1200, 900),
    }
    res := run(t, DefaultConfig(), els)
    require.Len(t, res.Groups, 6)
    var order []int
    for _, g := range res.Groups {
        order = append(order, g.Number)
    }
    assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, order)
    // each child stayed in its own column
    assert.Equal(t, []string{"t4"}, childIDs(groupByNumber(t, res, 4)))
}

func TestTwoColumnRowMajorInterleaving(t *testing.T) {
    cfg := DefaultConfig()
    cfg.RowMajor = true
    els := []element.Element{
        anchor("1", 40, 100), anchor("2", 40, 400), anchor("3", 40, 700),
        anchor("4", 620, 110), anchor("5", 620, 410), anchor("6", 620, 710),
        child("page", 0, 0, 1200, 900),
    }
    prof := profile.Compute(els, cfg.ProfileOptions)
    res := New(cfg).Partition(els, prof)
    require.Len(t, res.Groups, 6)
    var order []int
    for _, g := range res.Groups {
        order = append(order, g.Number)
    }
    assert.Equal(t, []int{1, 4, 2, 5, 3, 6}, order)
}

func TestHorizontalSplitRecursesPerBand(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), child("t1", 80, 104, 400, 30),
        anchor("2", 40, 300), child("t2", 80, 304, 400, 30),
        {ID: "sep", Class: element.ClassSeparator, Box: geometry.Box{X1: 5, Y1: 495, X2: 995, Y2: 505}},
        anchor("3", 40, 600), child("t3", 80, 604, 400, 30),
        anchor("4", 40, 800),
        // without the split this text would be ambiguous between 2 and 3
        child("t4", 80, 804, 400, 30),
        child("page", 0, 0, 1000, 900),
    }
    res := run(t, DefaultConfig(), els)
    require.Len(t, res.Groups, 4)
    assert.Equal(t, []string{"t3"}, childIDs(groupByNumber(t, res, 3)))
    assert.Equal(t, []string{"t4"}, childIDs(groupByNumber(t, res, 4)))
    // separator is carried in the orphan bucket, not dropped
    found := false
    for _, o := range res.Orphans {
        if o.ID == "sep" { found = true }
    }
    assert.True(t, found)
}

func TestGroupMapMergesDuplicateNumbersAndKeysUnparsed(t *testing.T) {
    g1 := element.NewGroup(element.NewAnchor(anchor("5", 40, 100)))
    g1.Append(child("c1", 80, 104, 100, 20))
    g2 := element.NewGroup(element.NewAnchor(anchor("5", 40, 300)))
    g2.Append(child("c2", 80, 304, 100, 20))
    un := element.NewGroup(element.NewAnchor(element.Element{
        ID: "u", Class: element.ClassQuestionNumber, Text: "??",
        Box: geometry.Box{X1: 40, Y1: 500, X2: 65, Y2: 520},
    }))

    res := Result{Groups: []*element.Group{g1, g2, un}}
    m := res.GroupMap()
    require.Len(t, m, 2)
    assert.ElementsMatch(t, []string{"c1", "c2"}, childIDs(m[5]))
    _, ok := m[element.UnparsedNumber]
    assert.True(t, ok)
}
