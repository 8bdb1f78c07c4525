package symbols

import "strings"

// Ticker converts an exchange-native instrument name to the bare coin symbol
// used as the cross-exchange key. It strips the perp suffixes each exchange
// attaches and uppercases the result.
// Currently supported exchanges: aevo, bybit, gateio, hyperliquid.
func Ticker(exchange, instrument string) string {
	sym := strings.TrimSpace(instrument)
	switch strings.ToLower(exchange) {
	case "aevo":
		sym = strings.TrimSuffix(sym, "-PERP")
	case "bybit", "gateio":
		// ccxt style "BTC/USDT:USDT" or "BTC/USDC:USDC"
		if i := strings.IndexByte(sym, '/'); i >= 0 {
			sym = sym[:i]
		}
		sym = strings.TrimSuffix(sym, "_USDT")
		sym = strings.TrimSuffix(sym, "_USDC")
	case "hyperliquid":
		// already a bare coin name
	}
	return strings.ToUpper(sym)
}

// RequestSymbol converts an exchange-native instrument name into the symbol
// format the exchange's HTTP API expects.
func RequestSymbol(exchange, instrument string) string {
	switch strings.ToLower(exchange) {
	case "aevo":
		// funding-history wants BTC-PERP
		if strings.HasSuffix(strings.ToUpper(instrument), "-PERP") {
			return strings.ToUpper(instrument)
		}
		return strings.ToUpper(instrument) + "-PERP"
	case "bybit":
		// v5 market endpoints want BTCUSDT
		sym := strings.ReplaceAll(instrument, "/", "")
		sym = strings.ReplaceAll(sym, ":USDT", "")
		sym = strings.ReplaceAll(sym, ":USDC", "")
		return strings.ToUpper(sym)
	case "gateio":
		// futures endpoints want BTC_USDT
		sym := instrument
		if i := strings.IndexByte(sym, '/'); i >= 0 {
			sym = sym[:i]
		}
		sym = strings.TrimSuffix(sym, "_USDT")
		return strings.ToUpper(sym) + "_USDT"
	case "hyperliquid":
		return strings.ToUpper(instrument)
	}
	return strings.ToUpper(instrument)
}
