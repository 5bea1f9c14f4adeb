package signal

import (
	"regexp"
	"strings"
)

// knownTickers is the whitelist used when extracting a coin from free text.
// Order matters only for readability; matching is exact per token.
var knownTickers = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "BNB": true, "XRP": true,
	"ADA": true, "DOGE": true, "AVAX": true, "DOT": true, "LINK": true,
	"MATIC": true, "LTC": true, "ATOM": true, "NEAR": true, "APT": true,
	"ARB": true, "OP": true, "SUI": true, "INJ": true, "TIA": true,
	"SEI": true, "WIF": true, "PEPE": true, "ORDI": true, "FET": true,
	"RNDR": true, "TON": true, "TRX": true, "UNI": true, "AAVE": true,
}

var (
	entryPhrase = regexp.MustCompile(`(?i)\b([A-Z]{2,6})\s*(?:/USDT|USDT)?\s+Entry\s*:`)
	tokenSplit  = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// ExtractCoin pulls a ticker out of free-form message text. Entry-phrase
// position wins over a bare whitelist hit; empty when nothing matches.
func ExtractCoin(content string) string {
	if m := entryPhrase.FindStringSubmatch(content); len(m) == 2 {
		tick := strings.ToUpper(m[1])
		if knownTickers[tick] {
			return tick
		}
	}
	for _, tok := range tokenSplit.Split(content, -1) {
		up := strings.ToUpper(tok)
		if knownTickers[up] {
			return up
		}
	}
	return ""
}

// Tokenize lowercases and splits text for similarity scoring.
func Tokenize(content string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenSplit.Split(strings.ToLower(content), -1) {
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}

// Jaccard is the token-set similarity of two texts in [0,1].
func Jaccard(a, b string) float64 {
	ta, tb := Tokenize(a), Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
