package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchLocale(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		fallback Locale
		want     Locale
	}{
		{in: "ru", fallback: English, want: Russian},
		{in: "ru-RU,ru;q=0.9,en-US;q=0.8", fallback: English, want: Russian},
		{in: "en-GB", fallback: Russian, want: English},
		{in: "", fallback: Russian, want: Russian},
		{in: "ja", fallback: Russian, want: Russian},
		{in: ";;;", fallback: English, want: English},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, MatchLocale(tc.in, tc.fallback), "input %q", tc.in)
	}
}

func TestLocaleThoughtsTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Thoughts", Locale("").ThoughtsTitle())
	assert.Equal(t, "Thoughts", English.ThoughtsTitle())
	assert.Equal(t, "Мысли", Russian.ThoughtsTitle())
}
