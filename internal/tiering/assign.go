package tiering

import (
	"sort"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// Candidate is one market entering tier assignment.
type Candidate struct {
	MarketID string
	Score    float64
	Burst    bool // temporarily forced hot after a recent signal
}

// Assign splits candidates into tiers. Blacklisted markets are dropped.
// Pinned and bursting markets always land in tier A and do not consume
// top-N slots; of the rest, the topN highest scores go to tier A and
// everything else to tier B. The sort is stable, so equal scores keep
// their input order and assignment is deterministic across refreshes.
func Assign(candidates []Candidate, topN int, overrides *Overrides) map[string]domain.Tier {
	tiers := make(map[string]domain.Tier, len(candidates))
	ranked := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if overrides.IsBlacklisted(c.MarketID) {
			continue
		}
		if overrides.IsPinned(c.MarketID) || c.Burst {
			tiers[c.MarketID] = domain.TierA
			continue
		}
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i, c := range ranked {
		if i < topN {
			tiers[c.MarketID] = domain.TierA
		} else {
			tiers[c.MarketID] = domain.TierB
		}
	}
	return tiers
}
