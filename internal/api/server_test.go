package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fundingflow/config"
	"fundingflow/internal/aggregate"
	"fundingflow/internal/models"
)

type fakeAggregator struct {
	lastReq    aggregate.Request
	lastEx     models.Exchange
	tickersErr error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, req aggregate.Request) (aggregate.Response, error) {
	f.lastReq = req
	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return aggregate.Response{}, errors.New("invalid sort order")
	}
	rate := "0.0001"
	return aggregate.Response{
		Data: []aggregate.Entry{{
			Coin:    "BTC",
			Name:    "Bitcoin",
			Logo:    "logo",
			Funding: map[string]*string{"bybit": &rate, "aevo": nil},
		}},
		Meta: aggregate.Meta{Page: req.Page, PerPage: req.Limit, TotalItems: 1, TotalPages: 1},
	}, nil
}

func (f *fakeAggregator) ExchangeFunding(ctx context.Context, ex models.Exchange, req aggregate.Request) (aggregate.Response, error) {
	f.lastEx = ex
	return aggregate.Response{Meta: aggregate.Meta{Page: req.Page}}, nil
}

func (f *fakeAggregator) Tickers(ctx context.Context) ([]string, error) {
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	return []string{"BTC", "ETH"}, nil
}

func (f *fakeAggregator) Coins(keyword string) []aggregate.Coin {
	if keyword == "none" {
		return nil
	}
	return []aggregate.Coin{{Coin: "BTC", Name: "Bitcoin", Logo: "logo"}}
}

func serve(t *testing.T, agg Aggregator, path string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(config.APIConfig{Addr: ":0"}, agg)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestAggregatedFunding(t *testing.T) {
	agg := &fakeAggregator{}
	w := serve(t, agg, "/api/v1/aggregated-funding?page=2&limit=5&time=1d&sort_order=desc&keyword=btc")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if agg.lastReq.Page != 2 || agg.lastReq.Limit != 5 || agg.lastReq.Timeframe != "1d" || agg.lastReq.Keyword != "btc" {
		t.Errorf("request not passed through: %+v", agg.lastReq)
	}

	var resp aggregate.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Coin != "BTC" {
		t.Errorf("unexpected data: %+v", resp.Data)
	}
	// Null cells survive serialization as JSON null.
	if resp.Data[0].Funding["aevo"] != nil {
		t.Error("expected null aevo cell")
	}
}

func TestAggregatedFundingDefaults(t *testing.T) {
	agg := &fakeAggregator{}
	w := serve(t, agg, "/api/v1/aggregated-funding")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if agg.lastReq.Page != 1 || agg.lastReq.Limit != 10 || agg.lastReq.Timeframe != "1h" || agg.lastReq.SortOrder != "asc" {
		t.Errorf("defaults not applied: %+v", agg.lastReq)
	}
}

func TestAggregatedFundingBadParams(t *testing.T) {
	cases := []string{
		"/api/v1/aggregated-funding?page=abc",
		"/api/v1/aggregated-funding?limit=abc",
		"/api/v1/aggregated-funding?sort_order=sideways",
	}
	for _, path := range cases {
		w := serve(t, &fakeAggregator{}, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: bad error body: %v", path, err)
		}
		if body["code"] != float64(400) || body["message"] == "" {
			t.Errorf("%s: error body = %v", path, body)
		}
	}
}

func TestExchangeFunding(t *testing.T) {
	agg := &fakeAggregator{}
	w := serve(t, agg, "/api/v1/funding/gateio")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if agg.lastEx != models.ExchangeGateio {
		t.Errorf("exchange = %s", agg.lastEx)
	}

	w = serve(t, agg, "/api/v1/funding/binance")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown exchange status = %d, want 400", w.Code)
	}
}

func TestTickers(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/api/v1/tickers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = serve(t, &fakeAggregator{tickersErr: errors.New("db down")}, "/api/v1/tickers")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCoins(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/api/v1/coins")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Empty results stay a JSON array, not null.
	w = serve(t, &fakeAggregator{}, "/api/v1/coins?keyword=none")
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if string(body["coins"]) != "[]" {
		t.Errorf("coins = %s, want []", body["coins"])
	}
}

func TestTickersPagination(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/api/v1/tickers?page=1&limit=1")
	var body map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body["tickers"]) != 1 || body["tickers"][0] != "BTC" {
		t.Errorf("page 1 = %v, want [BTC]", body["tickers"])
	}

	// Pages past the end are empty arrays, not errors.
	w = serve(t, &fakeAggregator{}, "/api/v1/tickers?page=9&limit=10")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body["tickers"]) != 0 {
		t.Errorf("out-of-range page = %v, want empty", body["tickers"])
	}
}

func TestHealthz(t *testing.T) {
	w := serve(t, &fakeAggregator{}, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
