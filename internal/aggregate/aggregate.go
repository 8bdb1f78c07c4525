package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fundingflow/internal/catalog"
	"fundingflow/internal/models"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Store is the slice of the storage gateway the engine queries.
type Store interface {
	AccumulatedFundingPaginated(ctx context.Context, ex models.Exchange, page, limit int, win timeframe.Window, sortOrder, keyword string) ([]models.TickerFunding, error)
	LatestFunding(ctx context.Context, ex models.Exchange, keyword string) ([]models.TickerFunding, error)
	UnionDistinctTickers(ctx context.Context) ([]string, error)
}

// Catalog resolves the canonical ticker universe and display metadata.
type Catalog interface {
	Tickers() []string
	Lookup(ticker string) catalog.Meta
}

// Request is one aggregation query.
type Request struct {
	Page      int
	Limit     int
	Timeframe string
	SortOrder string
	Keyword   string
}

// Entry is one row of the aggregated view. Funding holds one cell per
// exchange; nil means no data was ever seen for that pair.
type Entry struct {
	Coin    string             `json:"coin"`
	Logo    string             `json:"logo"`
	Name    string             `json:"name"`
	Funding map[string]*string `json:"funding"`
}

// Meta echoes the requested filters alongside the pagination state.
type Meta struct {
	Time       string `json:"time"`
	Coin       string `json:"coin"`
	SortOrder  string `json:"sortOrder"`
	Date       string `json:"date"`
	IsNextPage bool   `json:"isNextPage"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	TotalItems int    `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

type Response struct {
	Data []Entry `json:"data"`
	Meta Meta    `json:"meta"`
}

// Engine merges per-exchange funding sums into one per-ticker view. Each
// exchange is queried independently; a failing or empty exchange degrades to
// fallback or null cells instead of failing the whole query.
type Engine struct {
	store      Store
	catalog    Catalog
	fetchDepth int
	now        func() time.Time
	log        *logger.Entry
}

func NewEngine(store Store, cat Catalog, fetchDepth int) *Engine {
	if fetchDepth <= 0 {
		fetchDepth = 100
	}
	return &Engine{
		store:      store,
		catalog:    cat,
		fetchDepth: fetchDepth,
		now:        time.Now,
		log:        logger.GetLogger().WithComponent("aggregate"),
	}
}

// Aggregate builds the cross-exchange funding view for one timeframe.
func (e *Engine) Aggregate(ctx context.Context, req Request) (Response, error) {
	return e.build(ctx, req, models.Exchanges())
}

// ExchangeFunding is the single-exchange variant used by the per-exchange
// API routes.
func (e *Engine) ExchangeFunding(ctx context.Context, ex models.Exchange, req Request) (Response, error) {
	return e.build(ctx, req, []models.Exchange{ex})
}

func (e *Engine) build(ctx context.Context, req Request, exchanges []models.Exchange) (Response, error) {
	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return Response{}, fmt.Errorf("invalid sort order %q: use 'asc' or 'desc'", req.SortOrder)
	}
	if req.Page < 1 || req.Limit < 1 {
		return Response{}, fmt.Errorf("page and limit must be positive")
	}

	win, err := timeframe.Resolve(req.Timeframe, e.now())
	if err != nil {
		return Response{}, err
	}

	tickers := e.canonicalTickers(req.Keyword)

	// Funding cells per ticker, one column per exchange.
	cells := make(map[string]map[string]*string, len(tickers))
	inUniverse := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		inUniverse[t] = struct{}{}
		row := make(map[string]*string, len(exchanges))
		for _, ex := range exchanges {
			row[string(ex)] = nil
		}
		cells[t] = row
	}

	for _, ex := range exchanges {
		rows, err := e.store.AccumulatedFundingPaginated(ctx, ex, 1, e.fetchDepth, win, req.SortOrder, req.Keyword)
		if err != nil {
			e.log.WithError(err).WithFields(logger.Fields{"exchange": ex}).Error("windowed query failed, leaving cells empty")
			continue
		}
		if len(rows) == 0 {
			// Nothing in the window; substitute the most recent known rates.
			rows, err = e.store.LatestFunding(ctx, ex, req.Keyword)
			if err != nil {
				e.log.WithError(err).WithFields(logger.Fields{"exchange": ex}).Error("latest-funding fallback failed, leaving cells empty")
				continue
			}
		}
		for _, row := range rows {
			if _, ok := inUniverse[row.Ticker]; !ok {
				continue
			}
			cells[row.Ticker][string(ex)] = normalizeRate(row.FundingRate)
		}
	}

	sort.Strings(tickers)
	if req.SortOrder == "desc" {
		for i, j := 0, len(tickers)-1; i < j; i, j = i+1, j-1 {
			tickers[i], tickers[j] = tickers[j], tickers[i]
		}
	}

	totalItems := len(tickers)
	totalPages := (totalItems + req.Limit - 1) / req.Limit

	start := (req.Page - 1) * req.Limit
	if start > totalItems {
		start = totalItems
	}
	end := start + req.Limit
	if end > totalItems {
		end = totalItems
	}

	data := make([]Entry, 0, end-start)
	for _, t := range tickers[start:end] {
		meta := e.catalog.Lookup(t)
		data = append(data, Entry{
			Coin:    t,
			Logo:    meta.Logo,
			Name:    meta.Name,
			Funding: cells[t],
		})
	}

	return Response{
		Data: data,
		Meta: Meta{
			Time:       req.Timeframe,
			Coin:       req.Keyword,
			SortOrder:  req.SortOrder,
			Date:       e.now().UTC().Format("2006-01-02 15:04:05") + " UTC",
			IsNextPage: req.Page < totalPages,
			Page:       req.Page,
			PerPage:    req.Limit,
			TotalItems: totalItems,
			TotalPages: totalPages,
		},
	}, nil
}

// Tickers lists the distinct tickers actually present in storage.
func (e *Engine) Tickers(ctx context.Context) ([]string, error) {
	return e.store.UnionDistinctTickers(ctx)
}

// Coin is one /coins result.
type Coin struct {
	Coin string `json:"coin"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// Coins lists the catalog universe with display metadata, optionally
// filtered by a case-insensitive substring.
func (e *Engine) Coins(keyword string) []Coin {
	kw := strings.ToLower(keyword)
	var out []Coin
	for _, t := range e.catalog.Tickers() {
		if kw != "" && !strings.Contains(strings.ToLower(t), kw) {
			continue
		}
		meta := e.catalog.Lookup(t)
		out = append(out, Coin{Coin: t, Name: meta.Name, Logo: meta.Logo})
	}
	return out
}

// canonicalTickers returns the catalog universe, narrowed to an exact
// case-insensitive match when a keyword is given.
func (e *Engine) canonicalTickers(keyword string) []string {
	all := e.catalog.Tickers()
	if keyword == "" {
		return append([]string(nil), all...)
	}
	kw := strings.ToUpper(keyword)
	for _, t := range all {
		if strings.ToUpper(t) == kw {
			return []string{t}
		}
	}
	return nil
}

// normalizeRate round-trips the stored decimal string; malformed values
// become nil rather than leaking garbage into API responses.
func normalizeRate(s string) *string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	out := d.String()
	return &out
}
