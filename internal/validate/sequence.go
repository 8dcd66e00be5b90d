package validate

import (
    "encoding/json"
    "fmt"

    "github.com/local/layoutengine/internal/element"
)

// GapKind classifies one irregularity between adjacent anchor identifiers.
type GapKind int

const (
    // ForwardGap: ascending by more than 1 but at most the large-jump
    // threshold; the numbers strictly between are missing.
    ForwardGap GapKind = iota
    // Reverse: descending; almost always a digit misrecognition.
    Reverse
    // LargeJump: ascending past the threshold; a legitimate section break,
    // excluded from correction.
    LargeJump
)

var gapKindNames = map[GapKind]string{
    ForwardGap: "forward_gap",
    Reverse:    "reverse",
    LargeJump:  "large_jump",
}

func (k GapKind) String() string {
    if n, ok := gapKindNames[k]; ok { return n }
    return "forward_gap"
}

func (k GapKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *GapKind) UnmarshalJSON(data []byte) error {
    var s string
    if err := json.Unmarshal(data, &s); err != nil {
        return fmt.Errorf("gap kind: %w", err)
    }
    for kind, n := range gapKindNames {
        if n == s {
            *k = kind
            return nil
        }
    }
    return fmt.Errorf("gap kind: unknown value %q", s)
}

// SequenceGap is one irregular adjacent pair of anchor identifiers.
type SequenceGap struct {
    Before  int     `json:"before"`
    After   int     `json:"after"`
    Kind    GapKind `json:"kind"`
    Missing []int   `json:"missing,omitempty"`
    // ExpectedNext is the identifier the pair should have continued with;
    // digit repair targets it for reverse gaps.
    ExpectedNext int `json:"expected_next"`
}

// SequenceOptions carries the large-jump threshold.
type SequenceOptions struct {
    LargeJumpThreshold int
}

func DefaultSequenceOptions() SequenceOptions {
    return SequenceOptions{LargeJumpThreshold: 10}
}

// CheckSequence classifies every adjacent pair of parsed anchor identifiers.
// The input order is positional (anchor Y / reading order), not numeric:
// reverse gaps are only visible positionally. Unparsed sentinels are skipped.
func CheckSequence(ids []int, opts SequenceOptions) []SequenceGap {
    if opts.LargeJumpThreshold <= 0 {
        opts.LargeJumpThreshold = 10
    }
    parsed := make([]int, 0, len(ids))
    for _, id := range ids {
        if id != element.UnparsedNumber && id >= 0 {
            parsed = append(parsed, id)
        }
    }
    var gaps []SequenceGap
    for i := 1; i < len(parsed); i++ {
        before, after := parsed[i-1], parsed[i]
        delta := after - before
        switch {
        case delta == 0 || delta == 1:
            // identical or ascending by exactly 1: no gap
        case delta < 0:
            gaps = append(gaps, SequenceGap{
                Before: before, After: after, Kind: Reverse, ExpectedNext: before + 1,
            })
        case delta > opts.LargeJumpThreshold:
            gaps = append(gaps, SequenceGap{
                Before: before, After: after, Kind: LargeJump, ExpectedNext: before + 1,
            })
        default:
            missing := make([]int, 0, delta-1)
            for m := before + 1; m < after; m++ {
                missing = append(missing, m)
            }
            gaps = append(gaps, SequenceGap{
                Before: before, After: after, Kind: ForwardGap,
                Missing: missing, ExpectedNext: before + 1,
            })
        }
    }
    return gaps
}

// ReverseGaps filters the reverse subset (digit-repair candidates).
func ReverseGaps(gaps []SequenceGap) []SequenceGap {
    return filterGaps(gaps, Reverse)
}

// ForwardGaps filters the forward subset (recovered-unassigned candidates).
func ForwardGaps(gaps []SequenceGap) []SequenceGap {
    return filterGaps(gaps, ForwardGap)
}

func filterGaps(gaps []SequenceGap, kind GapKind) []SequenceGap {
    var out []SequenceGap
    for _, g := range gaps {
        if g.Kind == kind {
            out = append(out, g)
        }
    }
    return out
}
