package detection

import "strings"

// PersonLabel is the label that identifies person detections.
const PersonLabel = "person"

// DefaultLabels is the prompt list used when a request does not name any labels.
var DefaultLabels = []string{
	"person.", "shirt.", "pant.", "shoe.", "sandal.", "headscarf.",
	"watch.", "glasses.", "skirt.", "vest.", "hat.",
}

// NormalizeLabel lower-cases a label and strips surrounding whitespace and
// trailing periods, so "Person." and " person " both become "person".
func NormalizeLabel(label string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(label)), ".")
}

// IsPerson reports whether label names a person.
func IsPerson(label string) bool {
	return NormalizeLabel(label) == PersonLabel
}

// PrepareLabels turns user supplied labels into detector prompts.
//
// Blank labels are dropped, DefaultLabels is used when nothing remains, a
// person prompt is prepended when no label names a person, and every prompt
// ends with a period as the grounding detector expects. Applying it twice
// gives the same result as applying it once.
func PrepareLabels(labels []string) []string {
	cleaned := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		cleaned = append(cleaned, l)
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultLabels...)
	}

	hasPerson := false
	for _, l := range cleaned {
		if IsPerson(l) {
			hasPerson = true
			break
		}
	}
	if !hasPerson {
		cleaned = append([]string{PersonLabel}, cleaned...)
	}

	for i, l := range cleaned {
		if !strings.HasSuffix(l, ".") {
			cleaned[i] = l + "."
		}
	}
	return cleaned
}

// SplitLabels parses a comma separated label list such as "shirt, pant,shoe".
func SplitLabels(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
