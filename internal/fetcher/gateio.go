package fetcher

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/symbols"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Gateio fetches funding history from the v4 USDT futures endpoint. Gate.io
// reports second-resolution timestamps and serves up to 1000 rows in one
// call, which covers a year of 8h funding intervals; no pagination needed.
type Gateio struct {
	client
}

func NewGateio(cfg config.ExchangeConfig) *Gateio {
	return &Gateio{client: newClient(models.ExchangeGateio, cfg)}
}

func (g *Gateio) Exchange() models.Exchange {
	return models.ExchangeGateio
}

type gateioEntry struct {
	Time int64       `json:"t"`
	Rate json.Number `json:"r"`
}

func (g *Gateio) FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error) {
	native := timeframe.ToNative(models.ExchangeGateio, win)
	ticker := symbols.Ticker(string(models.ExchangeGateio), instrument)
	reqSymbol := symbols.RequestSymbol(string(models.ExchangeGateio), instrument)

	q := url.Values{}
	q.Set("contract", reqSymbol)
	q.Set("limit", strconv.Itoa(g.pageLimit))

	var entries []gateioEntry
	if err := g.getJSON(ctx, "/api/v4/futures/usdt/funding_rate", q, &entries); err != nil {
		return nil, err
	}
	logger.IncrementFetch(string(models.ExchangeGateio), len(entries))

	out := make([]models.RawFunding, 0, len(entries))
	for _, e := range entries {
		if e.Time < native.Since || e.Time > native.Until {
			continue
		}
		out = append(out, models.RawFunding{
			Ticker:      ticker,
			Timestamp:   e.Time,
			FundingRate: e.Rate.String(),
		})
	}
	return out, nil
}
