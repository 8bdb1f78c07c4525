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

// Aevo fetches funding history from the Aevo REST API. Aevo reports
// nanosecond timestamps and serves at most 50 rows per call, so the adapter
// pages backward by moving end_time to the earliest timestamp seen.
type Aevo struct {
	client
}

func NewAevo(cfg config.ExchangeConfig) *Aevo {
	return &Aevo{client: newClient(models.ExchangeAevo, cfg)}
}

func (a *Aevo) Exchange() models.Exchange {
	return models.ExchangeAevo
}

// aevoPage mirrors the funding-history response. Each entry is a positional
// array: [instrument_name, timestamp, funding_rate, mark_price].
type aevoPage struct {
	FundingHistory [][]json.RawMessage `json:"funding_history"`
}

func (a *Aevo) FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error) {
	native := timeframe.ToNative(models.ExchangeAevo, win)
	ticker := symbols.Ticker(string(models.ExchangeAevo), instrument)
	reqSymbol := symbols.RequestSymbol(string(models.ExchangeAevo), instrument)

	var out []models.RawFunding
	endTime := native.Until

	for endTime > native.Since {
		q := url.Values{}
		q.Set("instrument_name", reqSymbol)
		q.Set("start_time", strconv.FormatInt(native.Since, 10))
		q.Set("end_time", strconv.FormatInt(endTime, 10))
		q.Set("limit", strconv.Itoa(a.pageLimit))

		var page aevoPage
		if err := a.getJSON(ctx, "/funding-history", q, &page); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			a.log.WithError(err).WithFields(logger.Fields{"instrument": instrument}).Warn("aborting pagination, keeping partial history")
			return out, nil
		}
		logger.IncrementFetch(string(models.ExchangeAevo), len(page.FundingHistory))

		minTs := endTime
		for _, entry := range page.FundingHistory {
			row, ts, ok := parseAevoEntry(entry, ticker)
			if !ok {
				continue
			}
			out = append(out, row)
			if ts < minTs {
				minTs = ts
			}
		}

		if len(page.FundingHistory) < a.pageLimit {
			break
		}
		if minTs >= endTime {
			// No progress; bail out rather than loop forever.
			break
		}
		endTime = minTs
	}

	return out, nil
}

func parseAevoEntry(entry []json.RawMessage, ticker string) (models.RawFunding, int64, bool) {
	if len(entry) < 3 {
		return models.RawFunding{}, 0, false
	}
	var tsStr, rate string
	if err := json.Unmarshal(entry[1], &tsStr); err != nil {
		return models.RawFunding{}, 0, false
	}
	if err := json.Unmarshal(entry[2], &rate); err != nil {
		return models.RawFunding{}, 0, false
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return models.RawFunding{}, 0, false
	}

	var mark *string
	if len(entry) > 3 {
		var m string
		if err := json.Unmarshal(entry[3], &m); err == nil && m != "" {
			mark = &m
		}
	}

	return models.RawFunding{
		Ticker:      ticker,
		Timestamp:   ts,
		FundingRate: rate,
		MarkPrice:   mark,
	}, ts, true
}
