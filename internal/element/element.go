package element

import (
    "sort"
    "strconv"

    "github.com/local/layoutengine/internal/geometry"
)

// Element is one detected region of a page. Elements are produced upstream
// (layout detector + OCR + optional vision description) and are immutable
// here: the engine reads geometry, class and text, and only changes which
// group an element belongs to.
type Element struct {
    ID             string       `json:"id"`
    Class          Class        `json:"class"`
    Box            geometry.Box `json:"box"`
    Confidence     float64      `json:"confidence"`
    Text           string       `json:"text,omitempty"`
    TextConfidence float64      `json:"text_confidence,omitempty"`
    Description    string       `json:"description,omitempty"`
}

// UnparsedNumber is the sentinel for an anchor whose recognized text did not
// yield an integer identifier.
const UnparsedNumber = -1

// Anchor is an anchor-class element augmented with its parsed identifier.
type Anchor struct {
    Element
    Number int `json:"number"`
}

// NewAnchor parses the element's recognized text into an identifier.
func NewAnchor(el Element) Anchor {
    return Anchor{Element: el, Number: ParseNumber(el.Text)}
}

// ParseNumber extracts the first run of decimal digits from recognized text
// ("12.", "Q7", "(3)" all parse). Returns UnparsedNumber when there is none.
func ParseNumber(text string) int {
    start := -1
    for i := 0; i < len(text); i++ {
        if text[i] >= '0' && text[i] <= '9' {
            if start < 0 { start = i }
            continue
        }
        if start >= 0 {
            n, err := strconv.Atoi(text[start:i])
            if err != nil { return UnparsedNumber }
            return n
        }
    }
    if start >= 0 {
        n, err := strconv.Atoi(text[start:])
        if err != nil { return UnparsedNumber }
        return n
    }
    return UnparsedNumber
}

// Group is one anchor plus its children in insertion order. The group
// identifier is mutable during correction (digit repair renames it); the
// anchor element itself is not.
type Group struct {
    Number   int       `json:"number"`
    Anchor   Element   `json:"anchor"`
    Children []Element `json:"children"`
}

func NewGroup(anchor Anchor) *Group {
    return &Group{Number: anchor.Number, Anchor: anchor.Element}
}

func (g *Group) Append(el Element) {
    g.Children = append(g.Children, el)
}

// Envelope is the minimal box containing the anchor and every child.
func (g *Group) Envelope() geometry.Box {
    env := g.Anchor.Box
    for _, c := range g.Children {
        env = env.Union(c.Box)
    }
    return env
}

// Size counts the anchor plus children; conservation checks sum this.
func (g *Group) Size() int { return 1 + len(g.Children) }

// Clone deep-copies the group so correction can mutate an independent view.
func (g *Group) Clone() *Group {
    cp := &Group{Number: g.Number, Anchor: g.Anchor}
    if len(g.Children) > 0 {
        cp.Children = make([]Element, len(g.Children))
        copy(cp.Children, g.Children)
    }
    return cp
}

// GroupMap is the collection handed between validation, correction and the
// downstream formatter, keyed by group identifier.
type GroupMap map[int]*Group

// Clone deep-copies the map; correction always works on a clone so the
// pre-correction state stays inspectable for audit logging.
func (m GroupMap) Clone() GroupMap {
    cp := make(GroupMap, len(m))
    for id, g := range m {
        cp[id] = g.Clone()
    }
    return cp
}

// TotalElements counts anchors plus children across the collection.
func (m GroupMap) TotalElements() int {
    n := 0
    for _, g := range m {
        n += g.Size()
    }
    return n
}

// SortedNumbers returns group identifiers in ascending numeric order.
func (m GroupMap) SortedNumbers() []int {
    ids := make([]int, 0, len(m))
    for id := range m {
        ids = append(ids, id)
    }
    sort.Ints(ids)
    return ids
}

// OrderedByAnchorY returns groups sorted by anchor top Y, the reading order
// within a single column.
func (m GroupMap) OrderedByAnchorY() []*Group {
    gs := make([]*Group, 0, len(m))
    for _, g := range m {
        gs = append(gs, g)
    }
    sort.Slice(gs, func(i, j int) bool {
        if gs[i].Anchor.Box.Y1 == gs[j].Anchor.Box.Y1 {
            return gs[i].Anchor.Box.X1 < gs[j].Anchor.Box.X1
        }
        return gs[i].Anchor.Box.Y1 < gs[j].Anchor.Box.Y1
    })
    return gs
}
