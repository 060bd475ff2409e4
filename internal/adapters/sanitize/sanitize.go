// Package sanitize swaps the upstream engine name for the product brand in
// content shown to users, and back again in content handed to the model or
// persisted.
package sanitize

import "regexp"

const (
	upstreamName = "freqtrade"
	brandName    = "10xtraders"
)

var (
	upstreamPattern = regexp.MustCompile(`(?i)` + upstreamName)
	brandPattern    = regexp.MustCompile(`(?i)` + brandName)
)

// Content replaces every case-insensitive upstream mention with the brand.
func Content(content string) string {
	return upstreamPattern.ReplaceAllLiteralString(content, brandName)
}

func Logs(lines []string) []string {
	return mapLines(lines, Content)
}

// Desanitize reverses Content.
func Desanitize(content string) string {
	return brandPattern.ReplaceAllLiteralString(content, upstreamName)
}

func DesanitizeLogs(lines []string) []string {
	return mapLines(lines, Desanitize)
}

func mapLines(lines []string, fn func(string) string) []string {
	if lines == nil {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = fn(line)
	}
	return out
}
