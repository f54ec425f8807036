// Package feed reads the current Bitcoin/USD rate from the public price feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"pricecomparator/internal/models"
	"pricecomparator/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	Symbol = "BTC-USD"
	Source = "coindesk"

	// ratePath locates the USD rate in the feed body.
	ratePath = "bpi.USD.rate_float"

	maxErrorBody = 512
)

var (
	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_feed_fetch_total",
			Help: "Total number of price feed fetches by outcome",
		},
		[]string{"outcome"},
	)
	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_feed_fetch_duration_seconds",
			Help:    "Latency of price feed fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(fetchTotal)
	prometheus.MustRegister(fetchDuration)
}

// Client fetches quotes from a single fixed endpoint.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient returns a client for url. A nil httpClient gets a default one
// with a timeout shorter than the poll interval.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &Client{httpClient: httpClient, url: url}
}

// URL returns the endpoint this client polls.
func (c *Client) URL() string {
	return c.url
}

// FetchPrice issues one GET against the feed and extracts the USD rate.
// Every failure is returned as a *FetchError.
func (c *Client) FetchPrice(ctx context.Context) (models.Quote, error) {
	ctx, span := otel.Tracer(tracing.TracerName).Start(ctx, "feed.FetchPrice")
	defer span.End()
	span.SetAttributes(attribute.String("feed.url", c.url))

	start := time.Now()
	quote, err := c.fetch(ctx)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fetchTotal.WithLabelValues(string(fe.Reason)).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return models.Quote{}, err
	}

	fetchTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Float64("feed.price", quote.Price))
	return quote, nil
}

func (c *Client) fetch(ctx context.Context) (models.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return models.Quote{}, &FetchError{Reason: ReasonRequest, URL: c.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, &FetchError{Reason: ReasonRequest, URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.Quote{}, &FetchError{
			Reason:     ReasonStatus,
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s - %s", resp.Status, string(bodyBytes)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Quote{}, &FetchError{Reason: ReasonRead, URL: c.url, StatusCode: resp.StatusCode, Err: err}
	}

	price, err := parseRate(body)
	if err != nil {
		return models.Quote{}, &FetchError{Reason: ReasonDecode, URL: c.url, StatusCode: resp.StatusCode, Err: err}
	}

	return models.Quote{
		Symbol:    Symbol,
		Source:    Source,
		Price:     price,
		FetchedAt: time.Now(),
	}, nil
}

func parseRate(body []byte) (float64, error) {
	if !gjson.ValidBytes(body) {
		return 0, errors.New("response is not valid JSON")
	}

	res := gjson.GetBytes(body, ratePath)
	if !res.Exists() {
		return 0, fmt.Errorf("field %q missing", ratePath)
	}
	if res.Type != gjson.Number {
		return 0, fmt.Errorf("field %q is %s, not a number: %s", ratePath, res.Type, res.Raw)
	}

	price := res.Float()
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("field %q out of range: %s", ratePath, res.Raw)
	}
	return price, nil
}
