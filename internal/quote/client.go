package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

const (
	timestampPath = "$.chart.result[0].timestamp"
	closePath     = "$.chart.result[0].indicators.quote[0].close"
)

// Point is one daily close.
type Point struct {
	Timestamp time.Time    `json:"timestamp"`
	Close     domain.Money `json:"close_price"`
}

// Client reads chart JSON in the v8 finance chart layout.
type Client struct {
	baseURL    string
	rangeParam string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration, rangeParam string) *Client {
	return &Client{
		baseURL:    baseURL,
		rangeParam: rangeParam,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// History returns the daily closes for symbol, oldest first. Days without a
// close are skipped.
func (c *Client) History(ctx context.Context, symbol string) ([]Point, error) {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}

	doc, err := c.fetch(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("History: %s: %w", symbol, err)
	}

	points, err := parseChart(doc)
	if err != nil {
		return nil, fmt.Errorf("History: %s: %w", symbol, err)
	}
	return points, nil
}

// Latest is the most recent close, used to price a trade when the caller
// gives no price.
func (c *Client) Latest(ctx context.Context, symbol string) (domain.Money, error) {
	points, err := c.History(ctx, symbol)
	if err != nil {
		return domain.Zero, fmt.Errorf("Latest: %w", err)
	}
	if len(points) == 0 {
		return domain.Zero, fmt.Errorf("Latest: %s has no closes: %w", symbol, domain.ErrQuoteUnavailable)
	}
	return points[len(points)-1].Close, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (any, error) {
	log := logging.FromContext(ctx)

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", c.rangeParam)
	addr := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	log.Info("quote response received",
		"symbol", symbol,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch: unexpected status %d: %s: %w", resp.StatusCode, string(body), domain.ErrQuoteUnavailable)
	}

	// Numbers stay json.Number so prices never pass through float64.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("fetch: decode: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	return doc, nil
}

func parseChart(doc any) ([]Point, error) {
	timestamps, err := list(doc, timestampPath)
	if err != nil {
		return nil, err
	}
	closes, err := list(doc, closePath)
	if err != nil {
		return nil, err
	}
	if len(timestamps) != len(closes) {
		return nil, fmt.Errorf("parseChart: %d timestamps but %d closes: %w", len(timestamps), len(closes), domain.ErrQuoteUnavailable)
	}

	points := make([]Point, 0, len(timestamps))
	for i, raw := range closes {
		if raw == nil {
			continue
		}
		ts, ok := timestamps[i].(json.Number)
		if !ok {
			return nil, fmt.Errorf("parseChart: timestamp %v: %w", timestamps[i], domain.ErrQuoteUnavailable)
		}
		secs, err := ts.Int64()
		if err != nil {
			return nil, fmt.Errorf("parseChart: timestamp %s: %w", ts, domain.ErrQuoteUnavailable)
		}
		num, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("parseChart: close %v: %w", raw, domain.ErrQuoteUnavailable)
		}
		d, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("parseChart: close %s: %w", num, domain.ErrQuoteUnavailable)
		}
		price, err := domain.NewMoney(d.Round(domain.MoneyScale))
		if err != nil {
			return nil, fmt.Errorf("parseChart: %w", err)
		}
		points = append(points, Point{Timestamp: time.Unix(secs, 0).UTC(), Close: price})
	}
	return points, nil
}

func list(doc any, path string) ([]any, error) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, domain.ErrQuoteUnavailable, err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is not a list: %w", path, domain.ErrQuoteUnavailable)
	}
	return items, nil
}
