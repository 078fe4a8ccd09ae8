package tolerance

import (
	"fmt"
	"regexp"
	"strconv"
)

// Extraction pattern families. Each extractor owns one family and returns
// the shared candidate shape, so they stay independently testable.
var (
	diameterRe = regexp.MustCompile(`(?:⌀|Ø|ø)\s*(\d+(?:\.\d+)?)`)

	plusMinusRe = regexp.MustCompile(`(?i)(?:±|\+/-)\s*(\d+(?:\.\d+)?)\s*(µm|um|microns?|mm|deg|°)?`)

	truePositionRe = regexp.MustCompile(`(?i)\b(?:TP|true\s*position)\s*:?\s*(\d+(?:\.\d+)?)\s*(µm|um|microns?|mm)?`)

	flatnessRe = regexp.MustCompile(`(?i)\bflatness\s*:?\s*(\d+(?:\.\d+)?)\s*(µm|um|microns?|mm|deg|°)?`)

	isoTokenRe = regexp.MustCompile(`\b([A-Za-z]{1,2}\d{1,2}|\d{1,2}[A-Za-z]{1,2})\b`)
)

// plusMinusLookbehind is how far back a diameter marker may sit and still
// bind a ± tolerance to that diameter.
const plusMinusLookbehind = 24

// isoFitLookbehind is how far back the ISO-fit extractor searches for the
// diameter a fit code modifies.
const isoFitLookbehind = 48

// diameterMatch locates one diameter marker occurrence in the text.
type diameterMatch struct {
	start, end int
	digits     string
	value      float64
}

func findDiameters(text string) []diameterMatch {
	idx := diameterRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]diameterMatch, 0, len(idx))
	for _, m := range idx {
		digits := text[m[2]:m[3]]
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			continue
		}
		out = append(out, diameterMatch{start: m[0], end: m[1], digits: digits, value: v})
	}
	return out
}

// nearestDiameterBefore returns the closest diameter marker ending within
// window bytes before pos, or nil.
func nearestDiameterBefore(dias []diameterMatch, pos, window int) *diameterMatch {
	var best *diameterMatch
	for i := range dias {
		d := &dias[i]
		if d.end > pos {
			break
		}
		if pos-d.end <= window {
			best = d
		}
	}
	return best
}

// nearestDiameterAfter returns the first diameter marker starting within
// window bytes after pos, or nil.
func nearestDiameterAfter(dias []diameterMatch, pos, window int) *diameterMatch {
	for i := range dias {
		d := &dias[i]
		if d.start < pos {
			continue
		}
		if d.start-pos <= window {
			return d
		}
		break
	}
	return nil
}

func contextKey(ft FeatureType, at AppliesTo, digits string) string {
	return fmt.Sprintf("%s:%s:%s", ft, at, digits)
}

// extractPlusMinus matches "±N unit" and "+/-N unit". A diameter marker
// immediately before the match classifies it as a hole/diameter tolerance
// and claims the diameter context so the ISO-fit extractor skips it.
func extractPlusMinus(text string, hint Unit, claimed map[string]bool) []candidate {
	dias := findDiameters(text)
	matches := plusMinusRe.FindAllStringSubmatchIndex(text, -1)

	var cands []candidate
	for _, m := range matches {
		raw, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		rawUnit := ""
		if m[4] >= 0 {
			rawUnit = text[m[4]:m[5]]
		}
		unit, factor := normalizeUnit(rawUnit, hint)
		value, altered := clamp(raw*factor, unit)

		// Bind to a diameter marker just before the match, or to one that
		// follows closely ("±0.05mm on Ø10" reads the same as "Ø10 ±0.05mm").
		ft, at := FeatureProfile, AppliesGeneric
		note := ""
		d := nearestDiameterBefore(dias, m[0], plusMinusLookbehind)
		if d == nil {
			d = nearestDiameterAfter(dias, m[1], plusMinusLookbehind)
		}
		if d != nil {
			ft, at = FeatureHole, AppliesDiameter
			claimed[contextKey(ft, at, d.digits)] = true
			note = fmt.Sprintf("Ø%s %s", d.digits, text[m[0]:m[1]])
		}

		cands = append(cands, candidate{
			norm: Normalized{
				FeatureType:    ft,
				AppliesTo:      at,
				Unit:           unit,
				Value:          value,
				RoundedValue:   roundValue(value),
				RawValue:       raw,
				RawUnit:        rawUnit,
				Source:         SourceFreeText,
				ReviewRequired: altered,
				Note:           note,
			},
		})
	}
	return cands
}

// extractTruePosition matches "TP N" / "True Position N [unit]". Unit
// defaults to mm regardless of the ambient hint: true position callouts are
// linear by convention.
func extractTruePosition(text string) []candidate {
	matches := truePositionRe.FindAllStringSubmatchIndex(text, -1)

	var cands []candidate
	for _, m := range matches {
		raw, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		rawUnit := ""
		if m[4] >= 0 {
			rawUnit = text[m[4]:m[5]]
		}
		unit, factor := normalizeUnit(rawUnit, UnitMM)
		value, altered := clamp(raw*factor, unit)

		cands = append(cands, candidate{
			norm: Normalized{
				FeatureType:    FeaturePosition,
				AppliesTo:      AppliesTruePosition,
				Unit:           unit,
				Value:          value,
				RoundedValue:   roundValue(value),
				RawValue:       raw,
				RawUnit:        rawUnit,
				Source:         SourceFreeText,
				ReviewRequired: altered,
			},
		})
	}
	return cands
}

// extractFlatness matches "flatness N [unit]".
func extractFlatness(text string, hint Unit) []candidate {
	matches := flatnessRe.FindAllStringSubmatchIndex(text, -1)

	var cands []candidate
	for _, m := range matches {
		raw, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		rawUnit := ""
		if m[4] >= 0 {
			rawUnit = text[m[4]:m[5]]
		}
		unit, factor := normalizeUnit(rawUnit, hint)
		value, altered := clamp(raw*factor, unit)

		cands = append(cands, candidate{
			norm: Normalized{
				FeatureType:    FeatureFlatness,
				AppliesTo:      AppliesFlatness,
				Unit:           unit,
				Value:          value,
				RoundedValue:   roundValue(value),
				RawValue:       raw,
				RawUnit:        rawUnit,
				Source:         SourceFreeText,
				ReviewRequired: altered,
			},
		})
	}
	return cands
}

// extractISOFits scans short alphanumeric tokens against the known fit set,
// binds each to the nearest preceding diameter marker, and converts the
// (fit, diameter) pair into a tolerance in mm. Diameter contexts already
// claimed by the plus/minus extractor are skipped.
func extractISOFits(text string, claimed map[string]bool) []candidate {
	dias := findDiameters(text)
	matches := isoTokenRe.FindAllStringSubmatchIndex(text, -1)

	var cands []candidate
	for _, m := range matches {
		token := text[m[2]:m[3]]
		if !KnownFit(token) {
			continue
		}

		d := nearestDiameterBefore(dias, m[0], isoFitLookbehind)
		if d == nil {
			continue
		}
		if claimed[contextKey(FeatureHole, AppliesDiameter, d.digits)] {
			continue
		}

		band, ok := FitBandMicrons(token, d.value)
		if !ok {
			continue
		}
		value, altered := clamp(band/1000.0, UnitMM)

		cands = append(cands, candidate{
			norm: Normalized{
				FeatureType:    FeatureHole,
				AppliesTo:      AppliesDiameter,
				Unit:           UnitMM,
				Value:          value,
				RoundedValue:   roundValue(value),
				RawValue:       band,
				RawUnit:        "um",
				Source:         SourceISOFit,
				ReviewRequired: altered,
				ISOFit:         token,
				Note:           fmt.Sprintf("ISO fit %s on Ø%s: %g µm band", token, d.digits, band),
			},
		})
	}
	return cands
}
