package models

// Exchange identifies one of the supported funding-rate sources. The value
// doubles as the suffix of the exchange's storage table name.
type Exchange string

const (
	ExchangeAevo        Exchange = "aevo"
	ExchangeBybit       Exchange = "bybit"
	ExchangeGateio      Exchange = "gateio"
	ExchangeHyperliquid Exchange = "hyperliquid"
)

// Exchanges returns all supported exchanges in their canonical order.
func Exchanges() []Exchange {
	return []Exchange{ExchangeAevo, ExchangeBybit, ExchangeGateio, ExchangeHyperliquid}
}

// ParseExchange validates a user supplied exchange name.
func ParseExchange(s string) (Exchange, bool) {
	for _, ex := range Exchanges() {
		if string(ex) == s {
			return ex, true
		}
	}
	return "", false
}

// RawFunding is a single funding-rate observation as returned by a fetch
// adapter. Ticker already has the exchange-specific suffix stripped and
// Timestamp is in the exchange's native unit.
type RawFunding struct {
	Ticker      string
	Timestamp   int64
	FundingRate string
	MarkPrice   *string
}

// FundingRecord is the persisted shape, one row per observation. Timestamp
// stays in the source exchange's native unit; conversion happens at query
// time through the timeframe unit table.
type FundingRecord struct {
	InstrumentName string
	Timestamp      int64
	FundingRate    string
	MarkPrice      *string
}

// TickerFunding is one aggregation result row: a bare ticker and its summed
// funding rate over some window, serialized as an exact decimal string.
type TickerFunding struct {
	Ticker      string
	FundingRate string
}
