package internal

import "regexp"

// base64RunPattern matches long unbroken base64 runs, the shape of leaked
// certificate or key material inside a collaborator error message.
var base64RunPattern = regexp.MustCompile(`[A-Za-z0-9+/=]{50,}`)

// SanitizeErrorText redacts long base64 runs from an error message before it
// is surfaced, so a rejected submission never echoes the material back.
func SanitizeErrorText(msg string) string {
	return base64RunPattern.ReplaceAllString(msg, "[redacted]")
}
