package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/tolerance"
)

func row(id int64, mult float64, affects ...catalog.Dimension) catalog.Row {
	return catalog.Row{ID: id, Multiplier: mult, Affects: affects}
}

func TestBuildSummary_WidestWins(t *testing.T) {
	profile := tolerance.ProfileFor("standard")
	tols := tolerance.Map{
		"a": {Unit: tolerance.UnitMM, Value: 0.01, Source: tolerance.SourceStructured},
		"b": {Unit: tolerance.UnitMM, Value: 0.05, Source: tolerance.SourceFreeText},
	}
	matches := []catalog.Row{
		row(1, 1.5, catalog.DimMachineTime),
		row(2, 1.2, catalog.DimMachineTime, catalog.DimInspection),
		row(3, 1.8, catalog.DimRisk),
	}

	s := buildSummary(profile, tols, matches)

	// Max across rows per dimension, not the sum or the last.
	assert.Equal(t, 1.5, s.MachineMultiplier)
	assert.Equal(t, 1.2, s.InspectionMultiplier)
	assert.Equal(t, 1.8, s.RiskMultiplier)
	// No row touches setup: stays at the profile base.
	assert.Equal(t, 1.0, s.SetupMultiplier)

	assert.Equal(t, 2, s.EntryCount)
	assert.Equal(t, 0.01, s.TightestMM)
	assert.Equal(t, []int64{1, 2, 3}, s.MatchedRowIDs)
	assert.Equal(t, 1, s.SourceCounts[tolerance.SourceStructured])
	assert.Equal(t, 1, s.SourceCounts[tolerance.SourceFreeText])
}

func TestBuildSummary_ProfileIsFloor(t *testing.T) {
	profile := tolerance.ProfileFor("high_precision")
	matches := []catalog.Row{row(1, 1.1, catalog.DimMachineTime)}

	s := buildSummary(profile, tolerance.Map{}, matches)

	// A looser row never pulls the multiplier below the band baseline.
	assert.Equal(t, profile.MachineMultiplier, s.MachineMultiplier)
}

func TestBuildSummary_ReviewPropagates(t *testing.T) {
	tols := tolerance.Map{
		"a": {Unit: tolerance.UnitMM, Value: 0.001, ReviewRequired: true},
	}
	s := buildSummary(tolerance.ProfileFor("standard"), tols, nil)
	assert.True(t, s.ReviewRequired)
}

func TestBuildSummary_DuplicateRowsCountedOnce(t *testing.T) {
	matches := []catalog.Row{
		row(7, 1.3, catalog.DimMachineTime),
		row(7, 1.3, catalog.DimMachineTime),
	}
	s := buildSummary(tolerance.ProfileFor("standard"), tolerance.Map{}, matches)
	assert.Equal(t, []int64{7}, s.MatchedRowIDs)
}

func TestBuildSummary_DegreesIgnoredForTightest(t *testing.T) {
	tols := tolerance.Map{
		"a": {Unit: tolerance.UnitDeg, Value: 0.5},
		"b": {Unit: tolerance.UnitMM, Value: 0.2},
	}
	s := buildSummary(tolerance.ProfileFor("standard"), tols, nil)
	assert.Equal(t, 0.2, s.TightestMM)
}
