package correct

import (
    "sort"
    "strconv"

    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/validate"
)

// Options carries the digit-repair heuristics. They were tuned against one
// dataset; keeping them here lets them be recalibrated without touching the
// engine structure.
type Options struct {
    // ConfusionPairs maps a digit to the digits OCR commonly misreads it
    // as. The default table is symmetric: 0-6, 0-9, 1-7, 2-9, 3-8.
    ConfusionPairs map[byte][]byte
    // RepairWindow accepts a candidate within this distance of the expected
    // identifier when no candidate matches it exactly.
    RepairWindow int
    // BoxMatchTolerance locates elements by bounding box during
    // reassignment; geometry is the only stable identity across renames.
    BoxMatchTolerance float64
}

func DefaultOptions() Options {
    return Options{
        ConfusionPairs: map[byte][]byte{
            '0': {'6', '9'},
            '1': {'7'},
            '2': {'9'},
            '3': {'8'},
            '6': {'0'},
            '7': {'1'},
            '8': {'3'},
            '9': {'0', '2'},
        },
        RepairWindow:      2,
        BoxMatchTolerance: 1,
    }
}

// Move is one audited element reassignment.
type Move struct {
    ElementID string `json:"element_id"`
    From      int    `json:"from"`
    To        int    `json:"to"`
}

// Result is the audit record of one correction pass.
type Result struct {
    // Renames maps misread identifiers to their repaired values.
    Renames map[int]int `json:"renames,omitempty"`
    // Recovered are identifiers known missing but with no element to fill
    // them; nothing is invented for them.
    Recovered []int `json:"recovered,omitempty"`
    Moves     []Move `json:"moves,omitempty"`
    // RepairFailed lists suspects with no safe candidate; their groups are
    // left unchanged for operator review.
    RepairFailed []int `json:"repair_failed,omitempty"`
}

// NoOp reports whether the pass changed nothing.
func (r Result) NoOp() bool {
    return len(r.Renames) == 0 && len(r.Recovered) == 0 && len(r.Moves) == 0 && len(r.RepairFailed) == 0
}

// Engine repairs a group collection using validator output. It is a state
// machine: Valid -> NoOp; Invalid -> repair + gap recording -> reassignment
// -> merge -> Done.
type Engine struct {
    opts Options
}

func New(opts Options) *Engine {
    if opts.RepairWindow <= 0 { opts.RepairWindow = 2 }
    if opts.BoxMatchTolerance <= 0 { opts.BoxMatchTolerance = 1 }
    if len(opts.ConfusionPairs) == 0 {
        opts.ConfusionPairs = DefaultOptions().ConfusionPairs
    }
    return &Engine{opts: opts}
}

// Apply produces a corrected collection. The input map is never mutated: the
// engine works on a deep copy so callers can diff before/after for audit.
func (e *Engine) Apply(groups element.GroupMap, v validate.Result) (element.GroupMap, Result) {
    out := groups.Clone()
    if v.Valid() {
        return out, Result{}
    }

    res := Result{Renames: map[int]int{}}

    // phase 1a: OCR digit repair on reverse gaps
    for _, gap := range validate.ReverseGaps(v.Gaps) {
        suspect := gap.After
        if _, ok := out[suspect]; !ok {
            continue
        }
        fixed, ok := e.repairDigits(suspect, gap.ExpectedNext)
        if !ok {
            // no safe candidate within the window: keep the original and
            // leave the decision to an operator
            log.Warn().
                Int("suspect", suspect).
                Int("expected_next", gap.ExpectedNext).
                Msg("digit repair found no candidate within window")
            res.RepairFailed = append(res.RepairFailed, suspect)
            continue
        }
        if fixed != suspect {
            res.Renames[suspect] = fixed
        }
    }

    // phase 1b: forward gaps are recorded, never fabricated
    for _, gap := range validate.ForwardGaps(v.Gaps) {
        res.Recovered = append(res.Recovered, gap.Missing...)
    }
    sort.Ints(res.Recovered)

    // phase 2: spatial reassignment of contaminating elements
    for _, c := range v.Conflicts {
        for _, el := range c.ElementsA {
            e.moveElement(out, el, c.GroupB, &res)
        }
        for _, el := range c.ElementsB {
            e.moveElement(out, el, c.GroupA, &res)
        }
    }

    // phase 3: merge identifier renames into the map
    olds := make([]int, 0, len(res.Renames))
    for old := range res.Renames {
        olds = append(olds, old)
    }
    sort.Ints(olds)
    for _, old := range olds {
        renamed := res.Renames[old]
        g, ok := out[old]
        if !ok { continue }
        delete(out, old)
        if existing, collides := out[renamed]; collides {
            // concatenate child lists; the anchor that legitimately carries
            // the corrected identifier wins
            existing.Children = append(existing.Children, g.Children...)
            log.Info().
                Int("from", old).
                Int("to", renamed).
                Msg("rename collided; merged child lists")
            continue
        }
        g.Number = renamed
        out[renamed] = g
        log.Info().Int("from", old).Int("to", renamed).Msg("repaired group identifier")
    }

    if len(res.Renames) == 0 {
        res.Renames = nil
    }
    return out, res
}

// repairDigits generates single-digit substitution candidates for the
// suspect (always including the unmodified original) and picks the one equal
// to expected, else the in-window candidate closest to expected. Returns
// false when nothing qualifies: the engine never guesses past the window.
func (e *Engine) repairDigits(suspect, expected int) (int, bool) {
    candidates := e.digitCandidates(suspect)
    best, bestDist := 0, int(^uint(0) >> 1)
    found := false
    for _, cand := range candidates {
        if cand == expected {
            return cand, true
        }
        dist := abs(cand - expected)
        if dist <= e.opts.RepairWindow && dist < bestDist {
            best, bestDist = cand, dist
            found = true
        }
    }
    return best, found
}

func (e *Engine) digitCandidates(n int) []int {
    s := strconv.Itoa(n)
    out := []int{n}
    for i := 0; i < len(s); i++ {
        subs, ok := e.opts.ConfusionPairs[s[i]]
        if !ok { continue }
        for _, d := range subs {
            b := []byte(s)
            b[i] = d
            if b[0] == '0' && len(b) > 1 { continue } // no leading zero
            if v, err := strconv.Atoi(string(b)); err == nil {
                out = append(out, v)
            }
        }
    }
    return out
}

// moveElement locates el by bounding box (tolerance bound), removes it from
// its current group and appends it to the target. Elements never duplicate
// and never disappear: a failed lookup leaves the collection untouched.
func (e *Engine) moveElement(out element.GroupMap, el element.Element, target int, res *Result) {
    dst, ok := out[target]
    if !ok {
        log.Warn().Str("element", el.ID).Int("target", target).Msg("reassignment target group missing; keeping element in place")
        return
    }
    for num, g := range out {
        for i, c := range g.Children {
            if !c.Box.ApproxEqual(el.Box, e.opts.BoxMatchTolerance) {
                continue
            }
            if num == target {
                return // already where it belongs
            }
            g.Children = append(g.Children[:i], g.Children[i+1:]...)
            dst.Children = append(dst.Children, c)
            res.Moves = append(res.Moves, Move{ElementID: c.ID, From: num, To: target})
            log.Info().
                Str("element", c.ID).
                Int("from", num).
                Int("to", target).
                Msg("reassigned element across groups")
            return
        }
    }
    log.Warn().Str("element", el.ID).Msg("element not found by bounding box; skipping reassignment")
}

func abs(n int) int {
    if n < 0 { return -n }
    return n
}
