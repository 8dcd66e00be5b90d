package engine

import (
    "sort"

    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/correct"
    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/geometry"
    "github.com/local/layoutengine/internal/partition"
    "github.com/local/layoutengine/internal/profile"
    "github.com/local/layoutengine/internal/strategy"
    "github.com/local/layoutengine/internal/validate"
)

// Options collects the tunables of every pipeline stage.
type Options struct {
    Partition partition.Config
    Validate  validate.Options
    Correct   correct.Options
    // ForcedStrategy pins one strategy by name, bypassing profiling.
    ForcedStrategy string
}

func DefaultOptions() Options {
    return Options{
        Partition: partition.DefaultConfig(),
        Validate:  validate.DefaultOptions(),
        Correct:   correct.DefaultOptions(),
    }
}

// PageResult is the reconstruction of one page: corrected groups in reading
// order, the orphan bucket, and the audit trail of every stage.
type PageResult struct {
    Groups  []*element.Group  `json:"groups"`
    Orphans []element.Element `json:"orphans,omitempty"`

    Profile    profile.Profile `json:"profile"`
    Strategy   string          `json:"strategy"`
    Validation validate.Result `json:"validation"`
    Correction correct.Result  `json:"correction"`
}

// TotalElements counts every element carried by the result.
func (r PageResult) TotalElements() int {
    n := len(r.Orphans)
    for _, g := range r.Groups {
        n += g.Size()
    }
    return n
}

// Reconstructor is the page pipeline: profile, select, assign, validate,
// correct. It is stateless across pages and safe for concurrent use.
type Reconstructor struct {
    opts      Options
    selector  *strategy.Selector
    corrector *correct.Engine
}

func New(opts Options) *Reconstructor {
    return &Reconstructor{
        opts:      opts,
        selector:  strategy.NewSelector(opts.Partition),
        corrector: correct.New(opts.Correct),
    }
}

// Reconstruct runs the full pipeline over one page's element batch. Empty
// input yields an empty result; the pipeline itself never fails.
func (r *Reconstructor) Reconstruct(els []element.Element) PageResult {
    prof := profile.Compute(els, r.opts.Partition.ProfileOptions)
    strat := r.selector.Select(prof, r.opts.ForcedStrategy)
    assigned := strat.Assign(els, prof)

    groups := assigned.GroupMap()
    validation := validate.Check(assigned.Groups, groups, r.opts.Validate)
    corrected, correction := r.corrector.Apply(groups, validation)

    res := PageResult{
        Orphans:    assigned.Orphans,
        Profile:    prof,
        Strategy:   strat.Name(),
        Validation: validation,
        Correction: correction,
    }
    res.Groups = readingOrder(assigned.Groups, corrected)

    log.Debug().
        Str("strategy", res.Strategy).
        Str("topology", prof.Topology.String()).
        Int("groups", len(res.Groups)).
        Int("orphans", len(res.Orphans)).
        Int("gaps", len(validation.Gaps)).
        Int("conflicts", len(validation.Conflicts)).
        Bool("corrected", !correction.NoOp()).
        Msg("page reconstructed")
    return res
}

// readingOrder sorts the corrected groups by the position their anchors held
// in the assignment output. Anchors are matched by bounding box: correction
// renames identifiers and moves children but never touches anchor geometry.
func readingOrder(assigned []*element.Group, corrected element.GroupMap) []*element.Group {
    pos := make(map[geometry.Box]int, len(assigned))
    for i, g := range assigned {
        pos[g.Anchor.Box] = i
    }
    out := corrected.OrderedByAnchorY() // fallback order for unmatched anchors
    sort.SliceStable(out, func(i, j int) bool {
        a, aok := pos[out[i].Anchor.Box]
        b, bok := pos[out[j].Anchor.Box]
        if aok && bok {
            return a < b
        }
        return false
    })
    return out
}
