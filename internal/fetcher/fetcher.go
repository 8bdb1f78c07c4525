package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/internal/models"
	"fundingflow/internal/timeframe"
	"fundingflow/logger"
)

// Adapter fetches funding-rate history from one exchange. The window is in
// canonical milliseconds; returned rows carry timestamps in the exchange's
// native unit.
type Adapter interface {
	Exchange() models.Exchange
	FetchHistory(ctx context.Context, instrument string, win timeframe.Window) ([]models.RawFunding, error)
}

// NewAdapters builds an adapter for every enabled exchange in the config.
func NewAdapters(cfg *config.Config) []Adapter {
	var out []Adapter
	if cfg.Exchanges.Aevo.Enabled {
		out = append(out, NewAevo(cfg.Exchanges.Aevo))
	}
	if cfg.Exchanges.Bybit.Enabled {
		out = append(out, NewBybit(cfg.Exchanges.Bybit))
	}
	if cfg.Exchanges.Gateio.Enabled {
		out = append(out, NewGateio(cfg.Exchanges.Gateio))
	}
	if cfg.Exchanges.Hyperliquid.Enabled {
		out = append(out, NewHyperliquid(cfg.Exchanges.Hyperliquid))
	}
	return out
}

// client is the HTTP machinery shared by all adapters: a per-exchange rate
// limiter and capped retries with exponential backoff. A Retry-After header
// on 429 responses overrides the computed backoff.
type client struct {
	exchange   models.Exchange
	baseURL    string
	pageLimit  int
	maxRetries int
	limiter    *rate.Limiter
	boff       backoff.Backoff
	hc         *http.Client
	log        *logger.Entry
}

func newClient(ex models.Exchange, cfg config.ExchangeConfig) client {
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateEvery > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.RateEvery), 1)
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.RotateUserAgent {
		transport = &rotatingTransport{base: http.DefaultTransport}
	}

	min, max := cfg.BackoffMin, cfg.BackoffMax
	if min <= 0 {
		min = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = 1.5
	}

	return client{
		exchange:   ex,
		baseURL:    cfg.BaseURL,
		pageLimit:  cfg.PageLimit,
		maxRetries: cfg.MaxRetries,
		limiter:    lim,
		boff: backoff.Backoff{
			Min:    min,
			Max:    max,
			Factor: factor,
			Jitter: true,
		},
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		log: logger.GetLogger().WithComponent(string(ex) + "_fetcher"),
	}
}

func (c *client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	return c.do(ctx, func() (*http.Request, error) {
		u := c.baseURL + path
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, v)
}

func (c *client) postJSON(ctx context.Context, path string, body any, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, v)
}

// do executes the request with retries. 429 and 5xx responses and transport
// errors are retried up to maxRetries; anything else fails immediately.
func (c *client) do(ctx context.Context, build func() (*http.Request, error), v any) error {
	b := c.boff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := build()
		if err != nil {
			return err
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= c.maxRetries {
				return fmt.Errorf("request to %s failed after %d retries: %w", c.exchange, attempt, err)
			}
			if err := sleepCtx(ctx, b.Duration()); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := b.Duration()
			if resp.StatusCode == http.StatusTooManyRequests {
				if d, ok := retryAfter(resp.Header); ok {
					wait = d
				}
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if attempt >= c.maxRetries {
				return fmt.Errorf("%s returned status %d after %d retries", c.exchange, resp.StatusCode, attempt)
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("%s returned status %d: %s", c.exchange, resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.exchange, err)
		}
		return nil
	}
}

// retryAfter parses a Retry-After header, either delta-seconds or an HTTP
// date.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
		return time.Duration(sec) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
