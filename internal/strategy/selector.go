package strategy

import (
    "github.com/rs/zerolog/log"

    "github.com/local/layoutengine/internal/element"
    "github.com/local/layoutengine/internal/partition"
    "github.com/local/layoutengine/internal/profile"
)

// Hybrid runs both strategies and keeps the lower-penalty grouping.
type Hybrid struct {
    direct Strategy
    legacy Strategy
}

func NewHybrid(direct, legacy Strategy) *Hybrid {
    return &Hybrid{direct: direct, legacy: legacy}
}

func (h *Hybrid) Name() string { return NameHybrid }

func (h *Hybrid) Assign(els []element.Element, prof profile.Profile) partition.Result {
    dres := h.direct.Assign(els, prof)
    lres := h.legacy.Assign(els, prof)
    dp := Penalty(els, dres, prof)
    lp := Penalty(els, lres, prof)
    log.Debug().
        Float64("direct_penalty", dp).
        Float64("legacy_penalty", lp).
        Msg("hybrid strategy comparison")
    if lp < dp {
        return lres
    }
    return dres
}

// Selector picks a strategy from the page profile, or honors a forced
// override so operators can pin one for tuning.
type Selector struct {
    direct *Direct
    legacy *LegacyLocal
    hybrid *Hybrid

    // profile thresholds for the clean / ambiguous / irregular bands
    directConsistency float64
    directAdjacency   float64
    legacyConsistency float64
}

func NewSelector(cfg partition.Config) *Selector {
    d := NewDirect(cfg)
    l := NewLegacyLocal(cfg.RowBandPx)
    return &Selector{
        direct:            d,
        legacy:            l,
        hybrid:            NewHybrid(d, l),
        directConsistency: 0.7,
        directAdjacency:   0.5,
        legacyConsistency: 0.4,
    }
}

// Select returns the strategy for this page. forced takes one of the
// strategy names and bypasses profiling entirely; unknown values are
// ignored with a warning.
func (s *Selector) Select(prof profile.Profile, forced string) Strategy {
    switch forced {
    case NameDirect:
        return s.direct
    case NameLegacy:
        return s.legacy
    case NameHybrid:
        return s.hybrid
    case "":
    default:
        log.Warn().Str("forced_strategy", forced).Msg("unknown forced strategy; selecting by profile")
    }

    if prof.ConsistencyScore >= s.directConsistency && prof.AdjacencyRatio >= s.directAdjacency {
        return s.direct
    }
    if prof.ConsistencyScore < s.legacyConsistency || prof.Topology == profile.Mixed {
        return s.legacy
    }
    return s.hybrid
}
