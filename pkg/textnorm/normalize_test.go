package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/newsfang/pkg/textnorm"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain text unchanged",
			raw:  "Bitcoin hits $50,000",
			want: "Bitcoin hits $50,000",
		},
		{
			name: "case preserved",
			raw:  "ETH Breaks OUT",
			want: "ETH Breaks OUT",
		},
		{
			name: "html tags stripped",
			raw:  "<p>Bitcoin <b>hits</b> $50,000</p>",
			want: "Bitcoin hits $50,000",
		},
		{
			name: "script blocks removed with contents",
			raw:  "before<script>var x = 1;</script>after",
			want: "before after",
		},
		{
			name: "style blocks removed with contents",
			raw:  "before<style>.a{color:red}</style>after",
			want: "before after",
		},
		{
			name: "entities decoded",
			raw:  "fear &amp; greed &lt;index&gt;",
			want: "fear & greed",
		},
		{
			name: "whitespace collapsed",
			raw:  "  too\t many\n\n spaces  ",
			want: "too many spaces",
		},
		{
			name: "control characters stripped",
			raw:  "clean\x00\x1ftext",
			want: "clean text",
		},
		{
			name: "boilerplate lines dropped",
			raw:  "Real market news here\nSubscribe to our newsletter!\nMore analysis follows",
			want: "Real market news here More analysis follows",
		},
		{
			name: "cookie banner dropped",
			raw:  "This site uses cookies to improve UX\nPrice action continues",
			want: "Price action continues",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, textnorm.Normalize(tt.raw))
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	t.Parallel()

	raw := "<div>Ether &amp; Bitcoin​ rally\n\nSubscribe now\nMarkets close higher</div>"

	first := textnorm.Normalize(raw)
	second := textnorm.Normalize(raw)

	assert.Equal(t, first, second)
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	raw := "<p>Solana &gt; everything,\t they said</p>"

	once := textnorm.Normalize(raw)
	twice := textnorm.Normalize(once)

	assert.Equal(t, once, twice)
}

func TestNormalizeNFC(t *testing.T) {
	t.Parallel()

	// U+0065 U+0301 (decomposed) must normalize to U+00E9 (composed).
	decomposed := "café"
	composed := "café"

	assert.Equal(t, composed, textnorm.Normalize(decomposed))
	assert.Equal(t, textnorm.Normalize(composed), textnorm.Normalize(decomposed))
}

func TestTokenEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty", input: "", want: 0},
		{name: "shorter than one token", input: "ab", want: 1},
		{name: "exactly one token", input: "abcd", want: 1},
		{name: "twenty chars", input: "abcdefghijklmnopqrst", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, textnorm.TokenEstimate(tt.input))
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantLang string
		wantOK   bool
	}{
		{
			name:     "english sentence",
			input:    "the market closed higher and traders said this is the strongest week of the year",
			wantLang: "en",
			wantOK:   true,
		},
		{
			name:     "spanish sentence",
			input:    "el mercado de criptomonedas subió y los analistas dicen que es una señal de fuerza para el año",
			wantLang: "es",
			wantOK:   true,
		},
		{
			name:     "german sentence",
			input:    "der Markt ist heute gestiegen und die Analysten sagen das ist ein gutes Zeichen für das Jahr",
			wantLang: "de",
			wantOK:   true,
		},
		{
			name:   "too short to call",
			input:  "Bitcoin hits $50,000",
			wantOK: false,
		},
		{
			name:   "empty",
			input:  "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lang, ok := textnorm.DetectLanguage(tt.input)

			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.wantLang, lang)
			}
		})
	}
}
