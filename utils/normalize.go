package utils

import (
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// FoldDisplayName builds the searchable display name stored on the user
// mirror: ASCII-folded so "Łukasz Grüber" matches a plain "lukasz gruber"
// query, title-cased for display. Falls back to the username when the
// profile has no name parts.
func FoldDisplayName(first, last *string, username string) string {
	var parts []string
	if first != nil && strings.TrimSpace(*first) != "" {
		parts = append(parts, strings.TrimSpace(*first))
	}
	if last != nil && strings.TrimSpace(*last) != "" {
		parts = append(parts, strings.TrimSpace(*last))
	}

	name := strings.Join(parts, " ")
	if name == "" {
		name = username
	}

	return titleCaser.String(unidecode.Unidecode(strings.ToLower(name)))
}
