// Package tolerance parses structured tolerance entries and free-text
// engineering notes into a normalized tolerance map used by pricing.
//
// Values are always normalized to millimetres or degrees and clamped into a
// sane range. Out-of-range input is never rejected: it is clamped to the
// nearest bound and flagged for human review, so pricing stays available.
package tolerance

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a normalized tolerance unit. Output units are always mm or deg;
// micron input is converted to mm during normalization.
type Unit string

const (
	UnitMM  Unit = "mm"
	UnitDeg Unit = "deg"
)

// FeatureType classifies the geometric feature a tolerance applies to.
type FeatureType string

const (
	FeatureHole     FeatureType = "hole"
	FeatureSlot     FeatureType = "slot"
	FeaturePocket   FeatureType = "pocket"
	FeatureFlatness FeatureType = "flatness"
	FeaturePosition FeatureType = "position"
	FeatureThread   FeatureType = "thread"
	FeatureProfile  FeatureType = "profile"
)

// AppliesTo names the measured aspect of a feature. The well-known values
// are listed below; free strings are accepted from structured input.
type AppliesTo string

const (
	AppliesDiameter     AppliesTo = "diameter"
	AppliesWidth        AppliesTo = "width"
	AppliesDepth        AppliesTo = "depth"
	AppliesRunout       AppliesTo = "runout"
	AppliesFlatness     AppliesTo = "flatness"
	AppliesTruePosition AppliesTo = "true_position"
	AppliesPitch        AppliesTo = "pitch"
	AppliesGeneric      AppliesTo = "generic"
)

// Source records where a normalized tolerance came from. On key collisions
// the higher-priority source survives: structured > free_text > iso_fit.
type Source string

const (
	SourceStructured Source = "structured"
	SourceFreeText   Source = "free_text"
	SourceISOFit     Source = "iso_fit"
)

// sourcePriority orders sources for collapse. Equal priority favors the
// later entry.
func sourcePriority(s Source) int {
	switch s {
	case SourceStructured:
		return 3
	case SourceFreeText:
		return 2
	case SourceISOFit:
		return 1
	default:
		return 0
	}
}

// Clamp ranges per unit. Values outside are pulled to the nearest bound and
// flagged reviewRequired.
const (
	MinMM  = 0.001
	MaxMM  = 1.0
	MinDeg = 0.01
	MaxDeg = 5.0
)

// MaxEntries caps how many tolerance entries a single parse can produce.
const MaxEntries = 500

// MaxFreeTextLen caps free-text input length after sanitization.
const MaxFreeTextLen = 32768

// Entry is a structured tolerance input row, typically lifted off a part
// configuration. Unit and Value are raw and will be normalized.
type Entry struct {
	FeatureID   string      `json:"featureId,omitempty"`
	FeatureType FeatureType `json:"featureType"`
	AppliesTo   AppliesTo   `json:"appliesTo"`
	Unit        string      `json:"unit"`
	Value       float64     `json:"value"`
	ISOFit      string      `json:"isoFit,omitempty"`
	Note        string      `json:"note,omitempty"`
}

// Normalized is one parsed tolerance fact after unit normalization and
// clamping.
type Normalized struct {
	FeatureType    FeatureType `json:"featureType"`
	AppliesTo      AppliesTo   `json:"appliesTo"`
	Unit           Unit        `json:"unit"`
	Value          float64     `json:"value"`
	RoundedValue   float64     `json:"roundedValue"`
	RawValue       float64     `json:"rawValue"`
	RawUnit        string      `json:"rawUnit,omitempty"`
	Source         Source      `json:"source"`
	ReviewRequired bool        `json:"reviewRequired"`
	ISOFit         string      `json:"isoFit,omitempty"`
	Note           string      `json:"note,omitempty"`
}

// Map is the normalized tolerance map keyed by feature id or auto-key.
type Map map[string]Normalized

// Profile is the tolerance band context a part was quoted under, with the
// band's baseline cost multipliers.
type Profile struct {
	Band     string `json:"band"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`

	MachineMultiplier    float64 `json:"machineMultiplier"`
	SetupMultiplier      float64 `json:"setupMultiplier"`
	InspectionMultiplier float64 `json:"inspectionMultiplier"`
	RiskMultiplier       float64 `json:"riskMultiplier"`
}

// DefaultProfiles maps band names to baseline multipliers. Unknown bands
// fall back to "standard".
var DefaultProfiles = map[string]Profile{
	"standard": {
		Band:                 "standard",
		MachineMultiplier:    1.0,
		SetupMultiplier:      1.0,
		InspectionMultiplier: 1.0,
		RiskMultiplier:       1.0,
	},
	"precision": {
		Band:                 "precision",
		MachineMultiplier:    1.15,
		SetupMultiplier:      1.10,
		InspectionMultiplier: 1.25,
		RiskMultiplier:       1.10,
	},
	"high_precision": {
		Band:                 "high_precision",
		MachineMultiplier:    1.35,
		SetupMultiplier:      1.25,
		InspectionMultiplier: 1.60,
		RiskMultiplier:       1.25,
	},
}

// ProfileFor returns the profile for a band name, defaulting to standard.
func ProfileFor(band string) Profile {
	if p, ok := DefaultProfiles[strings.ToLower(strings.TrimSpace(band))]; ok {
		return p
	}
	return DefaultProfiles["standard"]
}

// Summary aggregates normalized entries and their catalog matches into the
// multipliers pricing factors consume. Multipliers combine "widest wins":
// the max across all matched rows, floored at the profile's base value.
type Summary struct {
	MachineMultiplier    float64 `json:"machineMultiplier"`
	SetupMultiplier      float64 `json:"setupMultiplier"`
	InspectionMultiplier float64 `json:"inspectionMultiplier"`
	RiskMultiplier       float64 `json:"riskMultiplier"`

	EntryCount     int            `json:"entryCount"`
	TightestMM     float64        `json:"tightestMm,omitempty"`
	SourceCounts   map[Source]int `json:"sourceCounts,omitempty"`
	MatchedRowIDs  []int64        `json:"matchedRowIds,omitempty"`
	ReviewRequired bool           `json:"reviewRequired"`

	BaseProfile Profile `json:"baseProfile"`
}

// AutoKey builds the deterministic key for entries without a feature id.
func AutoKey(ft FeatureType, at AppliesTo, index int) string {
	return fmt.Sprintf("%s:%s:%d", ft, at, index)
}

// roundValue rounds to 4 decimal places for the RoundedValue field.
func roundValue(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// clamp pulls v into the unit's range. The second return reports whether the
// value was altered (or was not a usable number to begin with).
func clamp(v float64, u Unit) (float64, bool) {
	min, max := MinMM, MaxMM
	if u == UnitDeg {
		min, max = MinDeg, MaxDeg
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return min, true
	}
	if v < min {
		return min, true
	}
	if v > max {
		return max, true
	}
	return v, false
}

// normalizeUnit maps a raw unit token to a normalized unit and a value
// conversion factor. Unrecognized or absent tokens fall back to the hint.
func normalizeUnit(raw string, hint Unit) (Unit, float64) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mm":
		return UnitMM, 1
	case "deg", "°", "degree", "degrees":
		return UnitDeg, 1
	case "um", "µm", "micron", "microns":
		return UnitMM, 1.0 / 1000.0
	case "":
		return hint, 1
	default:
		return hint, 1
	}
}
