package kucoin

import "strings"

// KuCoin names a few bases differently from their canonical tickers.
var aliasToCanonical = map[string]string{
	"XBT": "BTC",
}

var canonicalToAlias = map[string]string{
	"BTC": "XBT",
}

// CanonicalBase maps a KuCoin base currency to the canonical coin symbol.
func CanonicalBase(base string) string {
	base = strings.ToUpper(base)
	if c, ok := aliasToCanonical[base]; ok {
		return c
	}
	return base
}

// PerpetualPair builds the venue-native USDT perpetual symbol for a
// canonical coin: BTC -> XBTUSDTM, SOL -> SOLUSDTM.
func PerpetualPair(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if alias, ok := canonicalToAlias[coin]; ok {
		coin = alias
	}
	return coin + "USDTM"
}
