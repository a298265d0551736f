// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"
)

var (
	// Matches characters that are unsafe in directory or file names on at
	// least one supported platform.
	unsafePathCharRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)
	// Matches runs of whitespace (for collapsing).
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// SafeFileName converts arbitrary metadata (titles, author names) into a
// string safe to use as a path component on every supported platform.
//
// Rules:
//  1. Trim whitespace
//  2. Replace unsafe characters with a space
//  3. Collapse whitespace runs
//  4. Trim trailing dots (Windows rejects them)
//  5. Truncate to 120 characters
//
// Examples:
//
//	`Dune: Messiah`     → "Dune Messiah"
//	`He said "no"/maybe` → "He said no maybe"
func SafeFileName(input string) string {
	s := strings.TrimSpace(input)
	s = unsafePathCharRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, ". ")
	if len(s) > 120 {
		s = strings.TrimSpace(s[:120])
	}
	return s
}

// BookDirName builds the on-disk directory name for a book download:
// "<Author> - <Title>", with both parts sanitized. Falls back to the title
// alone when the author is unknown.
func BookDirName(author, title string) string {
	a := SafeFileName(author)
	t := SafeFileName(title)
	if t == "" {
		t = "Unknown"
	}
	if a == "" {
		return t
	}
	return a + " - " + t
}
