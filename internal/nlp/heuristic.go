package nlp

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/refine"
	"github.com/Sumatoshi-tech/newsfang/pkg/textnorm"
)

// Entity types the heuristic extractor emits.
const (
	EntityTypeAsset  = "asset"
	EntityTypeTicker = "ticker"
)

// HeuristicEntityExtractor finds asset mentions through the shared
// lexicon. It is deterministic and dependency-free, which makes it the
// default backend for tests and local runs.
type HeuristicEntityExtractor struct{}

// NewHeuristicEntityExtractor creates the lexicon-backed extractor.
func NewHeuristicEntityExtractor() *HeuristicEntityExtractor {
	return &HeuristicEntityExtractor{}
}

// Extract returns one entity per lexicon or ticker mention with its text
// span.
func (e *HeuristicEntityExtractor) Extract(_ context.Context, text string) ([]refine.CryptoEntity, error) {
	var entities []refine.CryptoEntity

	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]

		if symbol, ok := assetNames[strings.ToLower(word)]; ok {
			entities = append(entities, refine.CryptoEntity{
				Type:       EntityTypeAsset,
				Value:      symbol,
				Confidence: confidenceLexiconName,
				StartPos:   loc[0],
				EndPos:     loc[1],
			})

			continue
		}

		if _, known := knownSymbols[word]; known {
			entities = append(entities, refine.CryptoEntity{
				Type:       EntityTypeTicker,
				Value:      word,
				Confidence: confidenceLexiconSymbol,
				StartPos:   loc[0],
				EndPos:     loc[1],
			})
		}
	}

	return entities, nil
}

// datePattern matches ISO-style date mentions inside content.
var datePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// HeuristicTemporalExtractor anchors content on explicit date mentions,
// falling back to the publication time.
type HeuristicTemporalExtractor struct{}

// NewHeuristicTemporalExtractor creates the date-mention extractor.
func NewHeuristicTemporalExtractor() *HeuristicTemporalExtractor {
	return &HeuristicTemporalExtractor{}
}

// Extract returns the temporal context, or nil when neither a publication
// time nor a date mention exists.
func (e *HeuristicTemporalExtractor) Extract(_ context.Context, text string, publishedAt *time.Time) (*refine.TemporalContext, error) {
	var eventTime *time.Time

	if match := datePattern.FindString(text); match != "" {
		parsed, parseErr := time.Parse("2006-01-02", match)
		if parseErr == nil {
			eventTime = &parsed
		}
	}

	if publishedAt == nil && eventTime == nil {
		return nil, nil
	}

	tc := &refine.TemporalContext{EventTimestamp: eventTime}

	switch {
	case publishedAt != nil:
		tc.PublishedAt = publishedAt.UTC()
	case eventTime != nil:
		tc.PublishedAt = eventTime.UTC()
	}

	return tc, nil
}

// Quality component weights. Overall is the weighted mean: length 0.25,
// coherence 0.25, relevance 0.30, freshness 0.20.
const (
	weightLength    = 0.25
	weightCoherence = 0.25
	weightRelevance = 0.30
	weightFreshness = 0.20
)

// Quality scoring shape parameters.
const (
	// idealTokenCount is where the length score peaks.
	idealTokenCount = 120

	// minUsefulTokens is where the length score starts climbing.
	minUsefulTokens = 8

	// entityDensityCeiling is the entities-per-token ratio that earns a
	// full relevance score.
	entityDensityCeiling = 0.05

	// freshnessHalfLife halves the freshness score per elapsed interval.
	freshnessHalfLife = 7 * 24 * time.Hour

	// freshnessUnknown is the neutral score when no publication time is
	// known.
	freshnessUnknown = 0.5

	// idealSentenceTokens is the sentence length the coherence score
	// centers on.
	idealSentenceTokens = 18.0
)

// HeuristicQualityAnalyzer scores chunks from text statistics alone.
type HeuristicQualityAnalyzer struct {
	// now is injectable for deterministic freshness tests.
	now func() time.Time
}

// NewHeuristicQualityAnalyzer creates the statistics-backed analyzer.
func NewHeuristicQualityAnalyzer() *HeuristicQualityAnalyzer {
	return &HeuristicQualityAnalyzer{now: time.Now}
}

// NewHeuristicQualityAnalyzerWithClock creates an analyzer that reads the
// current time from now.
func NewHeuristicQualityAnalyzerWithClock(now func() time.Time) *HeuristicQualityAnalyzer {
	return &HeuristicQualityAnalyzer{now: now}
}

// Analyze scores the content. Components and the overall weighted mean
// all stay within [0,1].
func (a *HeuristicQualityAnalyzer) Analyze(_ context.Context, text string, signals Signals) (refine.QualityScore, error) {
	tokens := signals.TokenCount
	if tokens == 0 {
		tokens = textnorm.TokenEstimate(text)
	}

	score := refine.QualityScore{
		Length:    lengthScore(tokens),
		Coherence: coherenceScore(text, tokens),
		Relevance: relevanceScore(tokens, signals.EntityCount),
		Freshness: a.freshnessScore(signals.PublishedAt),
	}

	score.Overall = weightLength*score.Length +
		weightCoherence*score.Coherence +
		weightRelevance*score.Relevance +
		weightFreshness*score.Freshness

	return score, nil
}

// lengthScore ramps from zero below minUsefulTokens to one at
// idealTokenCount and stays there.
func lengthScore(tokens int) float64 {
	if tokens <= minUsefulTokens {
		return 0
	}

	if tokens >= idealTokenCount {
		return 1
	}

	return float64(tokens-minUsefulTokens) / float64(idealTokenCount-minUsefulTokens)
}

// coherenceScore compares the average sentence length against the ideal;
// fragments and run-ons both score lower.
func coherenceScore(text string, tokens int) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	count := 0

	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			count++
		}
	}

	if count == 0 {
		return 0
	}

	avg := float64(tokens) / float64(count)

	ratio := avg / idealSentenceTokens
	if ratio > 1 {
		ratio = idealSentenceTokens / avg
	}

	return clamp01(ratio)
}

// relevanceScore rewards entity density up to the ceiling.
func relevanceScore(tokens, entityCount int) float64 {
	if tokens == 0 {
		return 0
	}

	density := float64(entityCount) / float64(tokens)

	return clamp01(density / entityDensityCeiling)
}

// freshnessScore decays with the age of the publication time.
func (a *HeuristicQualityAnalyzer) freshnessScore(publishedAt *time.Time) float64 {
	if publishedAt == nil {
		return freshnessUnknown
	}

	age := a.now().Sub(*publishedAt)
	if age <= 0 {
		return 1
	}

	halfLives := float64(age) / float64(freshnessHalfLife)

	score := 1.0
	for range int(halfLives) {
		score /= 2
	}

	// Fractional remainder decays linearly within the current half-life.
	remainder := halfLives - float64(int(halfLives))
	score *= 1 - remainder/2

	return clamp01(score)
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
