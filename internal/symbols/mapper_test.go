package symbols

import "testing"

func TestTicker(t *testing.T) {
	cases := []struct {
		exchange   string
		instrument string
		want       string
	}{
		{"aevo", "BTC-PERP", "BTC"},
		{"aevo", "eth-PERP", "ETH"},
		{"bybit", "BTC/USDT:USDT", "BTC"},
		{"bybit", "SOL/USDC:USDC", "SOL"},
		{"gateio", "BTC/USDT:USDT", "BTC"},
		{"gateio", "DOGE_USDT", "DOGE"},
		{"hyperliquid", "BTC", "BTC"},
		{"hyperliquid", "kPEPE", "KPEPE"},
	}
	for _, c := range cases {
		if got := Ticker(c.exchange, c.instrument); got != c.want {
			t.Errorf("Ticker(%s, %s) = %s, want %s", c.exchange, c.instrument, got, c.want)
		}
	}
}

func TestRequestSymbol(t *testing.T) {
	cases := []struct {
		exchange   string
		instrument string
		want       string
	}{
		{"aevo", "BTC", "BTC-PERP"},
		{"aevo", "BTC-PERP", "BTC-PERP"},
		{"bybit", "BTC/USDT:USDT", "BTCUSDT"},
		{"gateio", "BTC/USDT:USDT", "BTC_USDT"},
		{"gateio", "BTC_USDT", "BTC_USDT"},
		{"hyperliquid", "btc", "BTC"},
	}
	for _, c := range cases {
		if got := RequestSymbol(c.exchange, c.instrument); got != c.want {
			t.Errorf("RequestSymbol(%s, %s) = %s, want %s", c.exchange, c.instrument, got, c.want)
		}
	}
}
