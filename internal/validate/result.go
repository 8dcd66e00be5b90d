package validate

import "github.com/local/layoutengine/internal/element"

// Result bundles both validators' findings for one group collection.
type Result struct {
    Gaps      []SequenceGap   `json:"gaps,omitempty"`
    Conflicts []RangeConflict `json:"conflicts,omitempty"`
}

// Valid iff both sets are empty.
func (r Result) Valid() bool {
    return len(r.Gaps) == 0 && len(r.Conflicts) == 0
}

// Options combines the thresholds of both validators.
type Options struct {
    Sequence SequenceOptions
    Spatial  SpatialOptions
}

func DefaultOptions() Options {
    return Options{
        Sequence: DefaultSequenceOptions(),
        Spatial:  DefaultSpatialOptions(),
    }
}

// Check runs both validators over ordered groups. The identifier sequence is
// taken in the provided reading order; the spatial check runs on the keyed
// collection.
func Check(ordered []*element.Group, groups element.GroupMap, opts Options) Result {
    ids := make([]int, 0, len(ordered))
    for _, g := range ordered {
        ids = append(ids, g.Number)
    }
    return Result{
        Gaps:      CheckSequence(ids, opts.Sequence),
        Conflicts: CheckSpatial(groups, opts.Spatial),
    }
}
