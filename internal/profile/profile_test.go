package profile

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/geometry"
)

func anchor(id string, x, y float64) element.Element {
    return element.Element{
        ID: id, Class: element.ClassQuestionNumber, Text: id,
        Box: geometry.Box{X1: x, Y1: y, X2: x + 25, Y2: y + 20},
    }
}

func text(id string, x, y, w, h float64) element.Element {
    return element.Element{
        ID: id, Class: element.ClassText,
        Box: geometry.Box{X1: x, Y1: y, X2: x + w, Y2: y + h},
    }
}

func TestZeroAnchorsDefaultsToSingleColumn(t *testing.T) {
    p := Compute([]element.Element{text("t1", 10, 10, 200, 40)}, DefaultOptions())
    assert.Equal(t, SingleColumn, p.Topology)
    assert.Equal(t, 0, p.AnchorCount)
    assert.Equal(t, 0.0, p.AdjacencyRatio)
    assert.Equal(t, 0.0, p.ConsistencyScore)
    assert.Equal(t, 210.0, p.PageWidth)
    assert.Equal(t, 50.0, p.PageHeight)
}

func TestSingleColumnConsistentAnchors(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), text("t1", 80, 100, 500, 40),
        anchor("2", 40, 300), text("t2", 80, 300, 500, 40),
        anchor("3", 40, 500), text("t3", 80, 500, 500, 40),
        anchor("4", 40, 700), text("t4", 80, 700, 500, 40),
        text("page", 0, 0, 800, 1000),
    }
    p := Compute(els, DefaultOptions())
    assert.Equal(t, SingleColumn, p.Topology)
    assert.Equal(t, 4, p.AnchorCount)
    assert.InDelta(t, 1.0, p.ConsistencyScore, 0.01)
    assert.Equal(t, 1.0, p.AdjacencyRatio)
}

func TestTwoColumnDetection(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), anchor("2", 40, 400), anchor("3", 40, 700),
        anchor("4", 520, 100), anchor("5", 520, 400), anchor("6", 520, 700),
        text("page", 0, 0, 1000, 900),
    }
    p := Compute(els, DefaultOptions())
    assert.Equal(t, TwoColumn, p.Topology)
    // split at the right cluster's leftmost anchor center
    assert.InDelta(t, 532.5, p.ColumnSplitX, 0.1)
}

func TestHorizontalSplitViaSeparator(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), anchor("2", 40, 300),
        element.Element{ID: "sep", Class: element.ClassSeparator, Box: geometry.Box{X1: 10, Y1: 495, X2: 990, Y2: 505}},
        anchor("3", 40, 600), anchor("4", 40, 800),
        text("page", 0, 0, 1000, 900),
    }
    p := Compute(els, DefaultOptions())
    assert.Equal(t, HorizontalSplit, p.Topology)
    assert.InDelta(t, 500.0, p.SeparatorY, 0.1)
}

func TestMixedTopology(t *testing.T) {
    // top half single column, bottom half two columns
    els := []element.Element{
        anchor("1", 40, 50), anchor("2", 40, 150), anchor("3", 40, 250), anchor("4", 40, 350),
        anchor("5", 40, 600), anchor("6", 40, 800),
        anchor("7", 520, 600), anchor("8", 520, 800),
        text("page", 0, 0, 1000, 1000),
    }
    p := Compute(els, DefaultOptions())
    assert.Equal(t, Mixed, p.Topology)
}

func TestAdjacencyRatioCountsSameRowChildren(t *testing.T) {
    els := []element.Element{
        anchor("1", 40, 100), text("t1", 80, 102, 400, 30), // same row
        anchor("2", 40, 300), text("t2", 80, 360, 400, 30), // below, outside band
        text("page", 0, 0, 800, 600),
    }
    p := Compute(els, DefaultOptions())
    assert.InDelta(t, 0.5, p.AdjacencyRatio, 1e-9)
}
