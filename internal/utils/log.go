package utils

import "strings"

// TruncateForLog prepares model prompts and answers for a log line: runs of
// whitespace, newlines included, collapse to one space and the result is cut
// to limit runes with an ellipsis.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
