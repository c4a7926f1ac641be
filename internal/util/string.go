// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers.
package util

// TruncateString truncates a string to a maximum number of runes, appending
// "..." when it cuts. Counting runes instead of bytes keeps multi-byte
// characters intact; answers and legal citations are routinely French text
// with accented characters.
func TruncateString(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
