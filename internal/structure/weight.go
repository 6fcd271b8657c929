package structure

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	weightSession    = 0
	weightDefault    = 1000
	weightAssistance = 5000

	modifiedSuffix = "- modificado"
)

// normalizeName lower-cases and trims a display name and strips the trailing "- modificado"
// marker added to edited copies.
func normalizeName(name string) string {
	// Casers are stateful, so one is built per call.
	n := strings.TrimSpace(cases.Lower(language.Spanish).String(name))
	if strings.HasSuffix(n, modifiedSuffix) {
		n = strings.TrimSpace(strings.TrimSuffix(n, modifiedSuffix))
	}
	return n
}

// itemWeight puts session work first and assistance last within a category.
func itemWeight(name string) int {
	n := normalizeName(name)
	switch {
	case strings.Contains(n, "shooting"), strings.Contains(n, "sesión"), strings.Contains(n, "sesion"):
		return weightSession
	case strings.Contains(n, "asistencia"), strings.Contains(n, "asistente"):
		return weightAssistance
	default:
		return weightDefault
	}
}
