// Package insight asks an external advisor for inventory and pricing
// suggestions. The answer is display-only: nothing in this service acts on it.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no advisor is configured.
var ErrUnavailable = errors.New("insight advisor is not configured")

type StockLine struct {
	Name   string          `json:"name"`
	Stock  int             `json:"stock"`
	MRP    decimal.Decimal `json:"mrp"`
	Expiry string          `json:"expiry,omitempty"`
}

type SaleLine struct {
	Date  time.Time       `json:"date"`
	Total decimal.Decimal `json:"total"`
	Items []string        `json:"items"`
}

type Insights struct {
	ReorderSuggestions []string `json:"reorderSuggestions"`
	PricingTips        []string `json:"pricingTips"`
	Anomalies          []string `json:"anomalies"`
}

type Advisor interface {
	Advise(ctx context.Context, inventory []StockLine, sales []SaleLine) (Insights, error)
}

type Option func(*HTTPAdvisor)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *HTTPAdvisor) { a.client = c }
}

// HTTPAdvisor posts the snapshot as JSON to a remote endpoint.
type HTTPAdvisor struct {
	url    string
	client *http.Client
}

func NewHTTPAdvisor(url string, opts ...Option) *HTTPAdvisor {
	a := &HTTPAdvisor{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type adviceRequest struct {
	Inventory []StockLine `json:"inventory"`
	Sales     []SaleLine  `json:"sales"`
}

func (a *HTTPAdvisor) Advise(ctx context.Context, inventory []StockLine, sales []SaleLine) (Insights, error) {
	payload, err := json.Marshal(adviceRequest{Inventory: inventory, Sales: sales})
	if err != nil {
		return Insights{}, fmt.Errorf("encode insight request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Insights{}, fmt.Errorf("build insight request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Insights{}, fmt.Errorf("call insight advisor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Insights{}, fmt.Errorf("insight advisor returned %d: %s", resp.StatusCode, body)
	}
	var out Insights
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Insights{}, fmt.Errorf("decode insight response: %w", err)
	}
	return out, nil
}

// Unconfigured always reports ErrUnavailable.
type Unconfigured struct{}

func (Unconfigured) Advise(context.Context, []StockLine, []SaleLine) (Insights, error) {
	return Insights{}, ErrUnavailable
}

// New returns an HTTP advisor for url, or Unconfigured when url is empty.
func New(url string) Advisor {
	if url == "" {
		return Unconfigured{}
	}
	return NewHTTPAdvisor(url)
}
