package synth

import (
	"strconv"
	"strings"
)

// PercPlaceholder is replaced by the compromise percentage in dataset path templates.
const PercPlaceholder = "{}"

// FormatPerc renders a percentage the way it appears in dataset file names:
// the shortest decimal that round-trips, e.g. 0.5 or 0.25.
func FormatPerc(perc float64) string {
	return strconv.FormatFloat(perc, 'f', -1, 64)
}

// DatasetPath expands every placeholder in template with perc.
func DatasetPath(template string, perc float64) string {
	return strings.ReplaceAll(template, PercPlaceholder, FormatPerc(perc))
}

// HasPercPlaceholder reports whether template yields distinct paths per percentage.
func HasPercPlaceholder(template string) bool {
	return strings.Contains(template, PercPlaceholder)
}
