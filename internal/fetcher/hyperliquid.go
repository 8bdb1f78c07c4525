package fetcher

import (
	"context"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/symbols"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Hyperliquid fetches funding history through the POST /info endpoint.
// Responses come oldest first, so the adapter pages forward by advancing
// startTime to the last timestamp seen.
type Hyperliquid struct {
	client
}

func NewHyperliquid(cfg config.ExchangeConfig) *Hyperliquid {
	return &Hyperliquid{client: newClient(models.ExchangeHyperliquid, cfg)}
}

func (h *Hyperliquid) Exchange() models.Exchange {
	return models.ExchangeHyperliquid
}

type hyperliquidRequest struct {
	Type      string `json:"type"`
	Coin      string `json:"coin"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Limit     int    `json:"limit"`
}

type hyperliquidEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

func (h *Hyperliquid) FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error) {
	ticker := symbols.Ticker(string(models.ExchangeHyperliquid), instrument)
	coin := symbols.RequestSymbol(string(models.ExchangeHyperliquid), instrument)

	var out []models.RawFunding
	startTime := win.Since

	for startTime < win.Until {
		payload := hyperliquidRequest{
			Type:      "fundingHistory",
			Coin:      coin,
			StartTime: startTime,
			EndTime:   win.Until,
			Limit:     h.pageLimit,
		}

		var entries []hyperliquidEntry
		if err := h.postJSON(ctx, "/info", payload, &entries); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			h.log.WithError(err).WithFields(logger.Fields{"instrument": instrument}).Warn("aborting pagination, keeping partial history")
			return out, nil
		}
		logger.IncrementFetch(string(models.ExchangeHyperliquid), len(entries))

		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			out = append(out, models.RawFunding{
				Ticker:      ticker,
				Timestamp:   e.Time,
				FundingRate: e.FundingRate,
			})
		}

		if len(entries) < h.pageLimit {
			break
		}
		last := entries[len(entries)-1].Time
		if last <= startTime {
			break
		}
		startTime = last
	}

	return out, nil
}
