package core

import (
	"strings"

	"triage-chatbot/pkg"
)

// ExtractUrgency returns the first label of pkg.UrgencyLevels whose lowercase
// text occurs anywhere in the summary.  A summary that names several labels
// resolves to the most urgent one; none resolves to Medium.
func ExtractUrgency(summary string) pkg.Urgency {
	lower := strings.ToLower(summary)
	for _, level := range pkg.UrgencyLevels {
		if strings.Contains(lower, strings.ToLower(string(level))) {
			return level
		}
	}
	return pkg.UrgencyMedium
}
