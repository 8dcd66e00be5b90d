package strategy

import (
    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/partition"
    "github.com/local/layoutengine/internal/profile"
)

// Strategy is one interchangeable assignment algorithm. Implementations
// never fail outright: empty or hostile input degrades to an empty result.
type Strategy interface {
    Name() string
    Assign(els []element.Element, prof profile.Profile) partition.Result
}

const (
    NameDirect = "direct"
    NameLegacy = "legacy_local"
    NameHybrid = "hybrid"
)

// Direct is the full spatial partitioner: recursive topology splits plus the
// three-pass assignment. Best for consistent, scanned layouts.
type Direct struct {
    p *partition.Partitioner
}

func NewDirect(cfg partition.Config) *Direct {
    return &Direct{p: partition.New(cfg)}
}

func (d *Direct) Name() string { return NameDirect }

func (d *Direct) Assign(els []element.Element, prof profile.Profile) partition.Result {
    return d.p.Partition(els, prof)
}
