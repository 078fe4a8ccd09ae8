package tolerance

import (
	"math"
	"regexp"
	"strings"
)

// candidate is the intermediate record every extractor and the structured
// path produce before collapsing into the final map.
type candidate struct {
	key  string
	norm Normalized
}

// Parse normalizes structured entries and free-text notes into a single
// tolerance map. Structured entries win key collisions against anything
// parsed from text.
func Parse(entries []Entry, freeText string, hint Unit) Map {
	cands := parseStructured(entries, hint)
	cands = append(cands, parseFreeText(freeText, hint)...)
	return collapse(cands)
}

// ParseStructured normalizes a structured tolerance list.
func ParseStructured(entries []Entry, hint Unit) Map {
	return collapse(parseStructured(entries, hint))
}

// ParseFreeText extracts tolerances from free-text engineering notes.
func ParseFreeText(text string, hint Unit) Map {
	return collapse(parseFreeText(text, hint))
}

func parseStructured(entries []Entry, hint Unit) []candidate {
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	cands := make([]candidate, 0, len(entries))
	for i, e := range entries {
		ft := e.FeatureType
		if ft == "" {
			ft = FeatureProfile
		}
		at := e.AppliesTo
		if at == "" {
			at = AppliesGeneric
		}

		unit, factor := normalizeUnit(e.Unit, hint)
		raw := e.Value
		converted := raw * factor

		// Non-finite and non-positive values cannot price a feature;
		// substitute the unit minimum and flag for review.
		flagged := false
		if math.IsNaN(converted) || math.IsInf(converted, 0) || converted <= 0 {
			converted = math.NaN()
			flagged = true
		}
		value, altered := clamp(converted, unit)

		key := e.FeatureID
		if key == "" {
			key = AutoKey(ft, at, i)
		}

		cands = append(cands, candidate{
			key: key,
			norm: Normalized{
				FeatureType:    ft,
				AppliesTo:      at,
				Unit:           unit,
				Value:          value,
				RoundedValue:   roundValue(value),
				RawValue:       raw,
				RawUnit:        e.Unit,
				Source:         SourceStructured,
				ReviewRequired: flagged || altered,
				ISOFit:         e.ISOFit,
				Note:           e.Note,
			},
		})
	}
	return cands
}

func parseFreeText(text string, hint Unit) []candidate {
	text = Sanitize(text)
	if text == "" {
		return nil
	}

	// Each extractor runs independently over the same sanitized text. The
	// plus/minus extractor claims diameter contexts first so the ISO-fit
	// extractor does not double-count the same physical dimension.
	claimed := make(map[string]bool)

	var cands []candidate
	cands = append(cands, extractPlusMinus(text, hint, claimed)...)
	cands = append(cands, extractTruePosition(text)...)
	cands = append(cands, extractFlatness(text, hint)...)
	cands = append(cands, extractISOFits(text, claimed)...)

	// Auto-keys use the entry's position in the combined extraction list so
	// distinct dimensions never share a key.
	for i := range cands {
		if cands[i].key == "" {
			cands[i].key = AutoKey(cands[i].norm.FeatureType, cands[i].norm.AppliesTo, i)
		}
	}

	if len(cands) > MaxEntries {
		cands = cands[:MaxEntries]
	}
	return cands
}

// collapse resolves key collisions by source priority; equal priority lets
// the later entry win.
func collapse(cands []candidate) Map {
	out := make(Map, len(cands))
	for _, c := range cands {
		if existing, ok := out[c.key]; ok {
			if sourcePriority(c.norm.Source) < sourcePriority(existing.Source) {
				continue
			}
		}
		out[c.key] = c.norm
	}
	if len(out) > MaxEntries {
		trimmed := make(Map, MaxEntries)
		n := 0
		for k, v := range out {
			if n >= MaxEntries {
				break
			}
			trimmed[k] = v
			n++
		}
		return trimmed
	}
	return out
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Sanitize strips HTML tags, trims whitespace, and truncates oversized
// input before extraction.
func Sanitize(text string) string {
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > MaxFreeTextLen {
		text = text[:MaxFreeTextLen]
	}
	return text
}
