package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/symbols"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Bybit fetches funding history from the v5 market endpoint. Bybit returns
// the newest rows of the requested range first, so the adapter pages backward
// by moving endTime below the earliest timestamp seen.
type Bybit struct {
	client
}

func NewBybit(cfg config.ExchangeConfig) *Bybit {
	return &Bybit{client: newClient(models.ExchangeBybit, cfg)}
}

func (b *Bybit) Exchange() models.Exchange {
	return models.ExchangeBybit
}

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol               string `json:"symbol"`
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	} `json:"result"`
}

func (b *Bybit) FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error) {
	ticker := symbols.Ticker(string(models.ExchangeBybit), instrument)
	reqSymbol := symbols.RequestSymbol(string(models.ExchangeBybit), instrument)

	var out []models.RawFunding
	endTime := win.Until

	for endTime > win.Since {
		q := url.Values{}
		q.Set("category", "linear")
		q.Set("symbol", reqSymbol)
		q.Set("startTime", strconv.FormatInt(win.Since, 10))
		q.Set("endTime", strconv.FormatInt(endTime, 10))
		q.Set("limit", strconv.Itoa(b.pageLimit))

		var resp bybitResponse
		if err := b.getJSON(ctx, "/v5/market/funding/history", q, &resp); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			b.log.WithError(err).WithFields(logger.Fields{"instrument": instrument}).Warn("aborting pagination, keeping partial history")
			return out, nil
		}
		if resp.RetCode != 0 {
			if len(out) == 0 {
				return nil, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
			}
			b.log.WithFields(logger.Fields{"instrument": instrument, "ret_code": resp.RetCode, "ret_msg": resp.RetMsg}).Warn("aborting pagination, keeping partial history")
			return out, nil
		}
		logger.IncrementFetch(string(models.ExchangeBybit), len(resp.Result.List))

		minTs := endTime
		// List is newest first; reverse so rows accumulate in time order.
		for i := len(resp.Result.List) - 1; i >= 0; i-- {
			entry := resp.Result.List[i]
			ts, err := strconv.ParseInt(entry.FundingRateTimestamp, 10, 64)
			if err != nil {
				continue
			}
			out = append(out, models.RawFunding{
				Ticker:      ticker,
				Timestamp:   ts,
				FundingRate: entry.FundingRate,
			})
			if ts < minTs {
				minTs = ts
			}
		}

		if len(resp.Result.List) < b.pageLimit {
			break
		}
		if minTs >= endTime {
			break
		}
		endTime = minTs - 1
	}

	return out, nil
}
