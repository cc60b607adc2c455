package nlp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/newsfang/internal/domain/content"
)

// Asset tag confidence per detection route. A lexicon match is the
// strongest signal; a $-prefixed ticker is explicit but unverified; a bare
// uppercase token is only a weak hint.
const (
	confidenceLexiconName   = 0.9
	confidenceLexiconSymbol = 0.85
	confidenceDollarTicker  = 0.75
	confidenceBareTicker    = 0.5
)

// maxSymbolLength bounds ticker symbols.
const maxSymbolLength = 10

// assetNames maps lowercase asset names to their ticker symbols.
var assetNames = map[string]string{
	"bitcoin":   "BTC",
	"ethereum":  "ETH",
	"ether":     "ETH",
	"solana":    "SOL",
	"cardano":   "ADA",
	"ripple":    "XRP",
	"dogecoin":  "DOGE",
	"polkadot":  "DOT",
	"litecoin":  "LTC",
	"chainlink": "LINK",
	"avalanche": "AVAX",
	"tether":    "USDT",
	"monero":    "XMR",
	"polygon":   "MATIC",
	"uniswap":   "UNI",
}

// knownSymbols is the set of ticker symbols the lexicon vouches for.
var knownSymbols = buildKnownSymbols()

func buildKnownSymbols() map[string]struct{} {
	set := make(map[string]struct{}, len(assetNames))
	for _, symbol := range assetNames {
		set[symbol] = struct{}{}
	}

	return set
}

// tickerStoplist holds uppercase tokens that read like tickers but are
// ordinary words or abbreviations.
var tickerStoplist = map[string]struct{}{
	"A": {}, "I": {}, "IT": {}, "US": {}, "UK": {}, "EU": {}, "CEO": {},
	"CTO": {}, "CFO": {}, "IPO": {}, "ETF": {}, "API": {}, "USD": {},
	"EUR": {}, "GBP": {}, "AI": {}, "Q": {}, "GDP": {}, "SEC": {}, "FAQ": {},
	"NEW": {}, "ALL": {}, "NOT": {}, "AND": {}, "THE": {}, "FOR": {},
}

var (
	// dollarTickerPattern matches explicit $-prefixed tickers.
	dollarTickerPattern = regexp.MustCompile(`\$([A-Z]{1,10})\b`)

	// bareTickerPattern matches standalone uppercase tokens.
	bareTickerPattern = regexp.MustCompile(`\b([A-Z]{2,10})\b`)

	// wordPattern tokenizes text for name lookups.
	wordPattern = regexp.MustCompile(`[A-Za-z]+`)
)

// TagAssets detects ticker-like mentions in text and returns one tag per
// distinct symbol, keeping the highest-confidence detection route.
func TagAssets(text string) []content.AssetTag {
	best := make(map[string]float64)

	for _, word := range wordPattern.FindAllString(text, -1) {
		if symbol, ok := assetNames[strings.ToLower(word)]; ok {
			keepBest(best, symbol, confidenceLexiconName)
		}
	}

	for _, match := range dollarTickerPattern.FindAllStringSubmatch(text, -1) {
		symbol := match[1]

		confidence := confidenceDollarTicker
		if _, known := knownSymbols[symbol]; known {
			confidence = confidenceLexiconSymbol
		}

		keepBest(best, symbol, confidence)
	}

	for _, match := range bareTickerPattern.FindAllStringSubmatch(text, -1) {
		symbol := match[1]
		if _, stopped := tickerStoplist[symbol]; stopped {
			continue
		}

		confidence := confidenceBareTicker
		if _, known := knownSymbols[symbol]; known {
			confidence = confidenceLexiconSymbol
		}

		keepBest(best, symbol, confidence)
	}

	tags := make([]content.AssetTag, 0, len(best))

	for symbol, confidence := range best {
		tag, tagErr := content.NewAssetTag(symbol, confidence)
		if tagErr != nil {
			// Symbols beyond the pattern bounds never reach here; the
			// patterns cap length at ten characters.
			continue
		}

		tags = append(tags, tag)
	}

	sortTags(tags)

	return tags
}

// keepBest records the highest confidence seen for a symbol.
func keepBest(best map[string]float64, symbol string, confidence float64) {
	if len(symbol) > maxSymbolLength {
		return
	}

	if confidence > best[symbol] {
		best[symbol] = confidence
	}
}

// sortTags orders tags by descending confidence, then symbol, so output
// is deterministic.
func sortTags(tags []content.AssetTag) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Confidence != tags[j].Confidence {
			return tags[i].Confidence > tags[j].Confidence
		}

		return tags[i].Symbol < tags[j].Symbol
	})
}
