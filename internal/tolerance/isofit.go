package tolerance

// ISO 286 fit lookup. Only the fits seen in practice on incoming drawings
// are supported; everything else is left to manual review.

// itRange is one diameter bracket of an IT grade table (diameters in mm,
// band in microns).
type itRange struct {
	maxDia float64
	band   float64
}

// IT grade tables per ISO 286-1, over the diameter range we machine.
var (
	it6 = []itRange{
		{3, 6}, {6, 8}, {10, 9}, {18, 11}, {30, 13},
		{50, 16}, {80, 19}, {120, 22}, {180, 25},
	}
	it7 = []itRange{
		{3, 10}, {6, 12}, {10, 15}, {18, 18}, {30, 21},
		{50, 25}, {80, 30}, {120, 35}, {180, 40},
	}
)

// knownFits maps the supported fit codes to their IT grade table.
var knownFits = map[string][]itRange{
	"H7": it7,
	"H6": it6,
	"G6": it6,
	"g6": it6,
}

// KnownFit reports whether the token is a supported ISO fit code.
// Matching is case-sensitive: H7 and g6 are distinct fits.
func KnownFit(token string) bool {
	_, ok := knownFits[token]
	return ok
}

// FitBandMicrons returns the tolerance band in microns for a fit code at a
// nominal diameter. Returns false for unknown fits or diameters outside the
// table.
func FitBandMicrons(fit string, diameterMM float64) (float64, bool) {
	table, ok := knownFits[fit]
	if !ok {
		return 0, false
	}
	if diameterMM <= 0 {
		return 0, false
	}
	for _, r := range table {
		if diameterMM <= r.maxDia {
			return r.band, true
		}
	}
	return 0, false
}
