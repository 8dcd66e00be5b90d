package element

import (
    "encoding/json"
    "fmt"
)

// Class is the closed taxonomy of detector labels. The set is partitioned
// into anchor classes (they root a group) and child classes (they attach to
// an anchor). Exhaustive switches over Class are deliberate: unknown labels
// from the detector map to ClassUnknown instead of leaking as raw strings.
type Class int

const (
    ClassUnknown Class = iota

    // anchor classes
    ClassQuestionNumber
    ClassSectionUnit

    // child classes
    ClassText
    ClassFigure
    ClassTable
    ClassFormula
    ClassChoice
    ClassCaption
    ClassHeader
    ClassFooter
    ClassPageNumber
    ClassSeparator
    ClassHandwriting
    ClassImage
)

var classNames = map[Class]string{
    ClassUnknown:        "unknown",
    ClassQuestionNumber: "question_number",
    ClassSectionUnit:    "section_unit",
    ClassText:           "text",
    ClassFigure:         "figure",
    ClassTable:          "table",
    ClassFormula:        "formula",
    ClassChoice:         "choice",
    ClassCaption:        "caption",
    ClassHeader:         "header",
    ClassFooter:         "footer",
    ClassPageNumber:     "page_number",
    ClassSeparator:      "separator",
    ClassHandwriting:    "handwriting",
    ClassImage:          "image",
}

var classByName = func() map[string]Class {
    m := make(map[string]Class, len(classNames))
    for c, n := range classNames {
        m[n] = c
    }
    return m
}()

func (c Class) String() string {
    if n, ok := classNames[c]; ok { return n }
    return "unknown"
}

// ParseClass maps a detector label to the taxonomy; unrecognized labels
// become ClassUnknown rather than an error.
func ParseClass(s string) Class {
    if c, ok := classByName[s]; ok { return c }
    return ClassUnknown
}

// IsAnchor reports whether the class roots a group.
func (c Class) IsAnchor() bool {
    switch c {
    case ClassQuestionNumber, ClassSectionUnit:
        return true
    default:
        return false
    }
}

// IsVisual reports whether the class is a large visual block that the
// lookahead pass reconsiders (figures, tables, formulas).
func (c Class) IsVisual() bool {
    switch c {
    case ClassFigure, ClassTable, ClassFormula, ClassImage:
        return true
    default:
        return false
    }
}

func (c Class) MarshalJSON() ([]byte, error) {
    return json.Marshal(c.String())
}

func (c *Class) UnmarshalJSON(data []byte) error {
    var s string
    if err := json.Unmarshal(data, &s); err != nil {
        return fmt.Errorf("class: %w", err)
    }
    *c = ParseClass(s)
    return nil
}

// ClassSet is a membership filter used for worksheet-mode allow-lists.
type ClassSet map[Class]struct{}

func NewClassSet(classes ...Class) ClassSet {
    s := make(ClassSet, len(classes))
    for _, c := range classes {
        s[c] = struct{}{}
    }
    return s
}

// ParseClassSet builds a set from detector label names, skipping unknowns.
func ParseClassSet(names []string) ClassSet {
    s := make(ClassSet, len(names))
    for _, n := range names {
        if c := ParseClass(n); c != ClassUnknown {
            s[c] = struct{}{}
        }
    }
    return s
}

func (s ClassSet) Has(c Class) bool {
    if s == nil { return false }
    _, ok := s[c]
    return ok
}
