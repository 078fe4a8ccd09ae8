package pricing

import (
	"sort"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/tolerance"
)

// buildSummary combines the normalized tolerance map and its cost-book
// matches into the multipliers the factor pipeline consumes.
//
// Multipliers combine widest-wins: each dimension takes the maximum
// multiplier across all matched rows, floored at the band profile's
// baseline. A part with one tight hole pays the tight-hole machine rate even
// if every other callout is loose.
func buildSummary(profile tolerance.Profile, tols tolerance.Map, matches []catalog.Row) tolerance.Summary {
	s := tolerance.Summary{
		MachineMultiplier:    profile.MachineMultiplier,
		SetupMultiplier:      profile.SetupMultiplier,
		InspectionMultiplier: profile.InspectionMultiplier,
		RiskMultiplier:       profile.RiskMultiplier,
		EntryCount:           len(tols),
		SourceCounts:         make(map[tolerance.Source]int),
		BaseProfile:          profile,
	}

	for _, n := range tols {
		s.SourceCounts[n.Source]++
		if n.ReviewRequired {
			s.ReviewRequired = true
		}
		if n.Unit == tolerance.UnitMM && (s.TightestMM == 0 || n.Value < s.TightestMM) {
			s.TightestMM = n.Value
		}
	}

	seen := make(map[int64]bool)
	for _, row := range matches {
		if !seen[row.ID] {
			seen[row.ID] = true
			s.MatchedRowIDs = append(s.MatchedRowIDs, row.ID)
		}
		if row.AffectsDimension(catalog.DimMachineTime) && row.Multiplier > s.MachineMultiplier {
			s.MachineMultiplier = row.Multiplier
		}
		if row.AffectsDimension(catalog.DimSetupTime) && row.Multiplier > s.SetupMultiplier {
			s.SetupMultiplier = row.Multiplier
		}
		if row.AffectsDimension(catalog.DimInspection) && row.Multiplier > s.InspectionMultiplier {
			s.InspectionMultiplier = row.Multiplier
		}
		if row.AffectsDimension(catalog.DimRisk) && row.Multiplier > s.RiskMultiplier {
			s.RiskMultiplier = row.Multiplier
		}
	}
	sort.Slice(s.MatchedRowIDs, func(i, j int) bool { return s.MatchedRowIDs[i] < s.MatchedRowIDs[j] })

	return s
}
