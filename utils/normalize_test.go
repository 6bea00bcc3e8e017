package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFoldDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		first    *string
		last     *string
		username string
		want     string
	}{
		{"ascii folds accents", strPtr("Łukasz"), strPtr("Grüber"), "lg", "Lukasz Gruber"},
		{"trims whitespace", strPtr(" Ana "), nil, "ana42", "Ana"},
		{"falls back to username", nil, nil, "casey", "Casey"},
		{"blank parts treated as missing", strPtr(""), strPtr("   "), "dana", "Dana"},
		{"cyrillic transliterated", strPtr("Иван"), strPtr("Петров"), "ivan", "Ivan Petrov"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FoldDisplayName(tt.first, tt.last, tt.username))
		})
	}
}
