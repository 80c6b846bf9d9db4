package projects

import "strings"

// ParseSpecSteps turns free-text specs into ordered step texts: split on
// newline, strip one leading bullet marker, trim, drop empties. The exact
// behavior is a contract; planned step state depends on it deterministically.
func ParseSpecSteps(specs string) []string {
	steps := []string{}
	for _, line := range strings.Split(specs, "\n") {
		text := strings.TrimSpace(line)
		if strings.HasPrefix(text, "-") || strings.HasPrefix(text, "*") {
			text = strings.TrimSpace(text[1:])
		}
		if text == "" {
			continue
		}
		steps = append(steps, text)
	}
	return steps
}
