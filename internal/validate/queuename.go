package validate

import "regexp"

var queueNameInvalidChars = regexp.MustCompile(`[^A-Za-z0-9-]`)

// SanitizeQueueNameComponent replaces every character outside
// [A-Za-z0-9-] with a hyphen, per §4.3's naming scheme.
func SanitizeQueueNameComponent(value string) string {
	return queueNameInvalidChars.ReplaceAllString(value, "-")
}
