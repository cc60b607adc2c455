package textnorm

import "strings"

// Language detection thresholds.
const (
	// minStopwordHits is the minimum number of stopword occurrences
	// required before a detection counts as confident.
	minStopwordHits = 2

	// minStopwordRatio is the minimum share of tokens that must be
	// stopwords of the winning language.
	minStopwordRatio = 0.15
)

// stopwordProfiles maps ISO-639-1 codes to small sets of
// high-frequency function words.
var stopwordProfiles = map[string][]string{
	"en": {"the", "and", "is", "of", "to", "in", "that", "it", "for", "was", "with", "are", "this", "have", "from", "not", "they"},
	"es": {"el", "la", "los", "las", "de", "que", "y", "en", "un", "una", "es", "por", "con", "para", "del", "se", "su"},
	"de": {"der", "die", "das", "und", "ist", "von", "mit", "den", "im", "für", "auf", "nicht", "ein", "eine", "zu", "dem"},
	"fr": {"le", "la", "les", "de", "des", "et", "est", "en", "un", "une", "du", "que", "pour", "dans", "qui", "sur", "au"},
	"pt": {"o", "a", "os", "as", "de", "que", "e", "em", "um", "uma", "é", "do", "da", "para", "com", "não", "por"},
	"it": {"il", "la", "le", "di", "che", "e", "è", "un", "una", "per", "con", "del", "della", "non", "sono", "nel"},
}

// stopwordSets is stopwordProfiles compiled into lookup sets.
var stopwordSets = buildStopwordSets()

func buildStopwordSets() map[string]map[string]struct{} {
	sets := make(map[string]map[string]struct{}, len(stopwordProfiles))

	for lang, words := range stopwordProfiles {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}

		sets[lang] = set
	}

	return sets
}

// DetectLanguage guesses the ISO-639-1 language code of normalized text by
// counting stopword hits per language profile. The second return value is
// false when no profile wins confidently; short or ambiguous text stays
// undetected rather than mislabeled.
func DetectLanguage(text string) (string, bool) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return "", false
	}

	scores := make(map[string]int, len(stopwordSets))

	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}

		for lang, set := range stopwordSets {
			if _, hit := set[tok]; hit {
				scores[lang]++
			}
		}
	}

	best, runnerUp, bestLang := 0, 0, ""

	for lang, score := range scores {
		switch {
		case score > best:
			runnerUp = best
			best = score
			bestLang = lang
		case score > runnerUp:
			runnerUp = score
		}
	}

	if best < minStopwordHits || best == runnerUp {
		return "", false
	}

	if float64(best)/float64(len(tokens)) < minStopwordRatio {
		return "", false
	}

	return bestLang, true
}
