/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package issuematcher

import (
	"regexp"
	"strings"
)

var (
	separators = regexp.MustCompile(`[\s_\-/.]+`)

	// checkboxLine matches a checklist entry asking for an automatically
	// generated pull request, capturing the box state.
	checkboxLine = regexp.MustCompile(`(?im)^[ \t]*[-*+][ \t]+\[([ xX])\][ \t]+auto[- ]?generat\w*[^\n]*\bPRs?\b`)
)

// NormalizeLabel folds a label into its canonical hyphenated form so that
// "Module Spec", "module_spec" and "module-spec" compare equal.
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = separators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// HasLabel reports whether any of labels normalizes to target.
func HasLabel(labels []string, target string) bool {
	target = NormalizeLabel(target)
	if target == "" {
		return false
	}
	for _, l := range labels {
		if NormalizeLabel(l) == target {
			return true
		}
	}
	return false
}

// CheckboxChecked reports whether body contains a checked
// "Auto-generate ... PR" checklist line. Absent lines count as unchecked.
func CheckboxChecked(body string) bool {
	for _, m := range checkboxLine.FindAllStringSubmatch(body, -1) {
		if m[1] == "x" || m[1] == "X" {
			return true
		}
	}
	return false
}
