// Package venue adapts the perpetual-futures trading venue used for the
// directional order each cycle.
package venue

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"TreasuryCycler/internal/model"
)

const (
	KindPaper = "paper"
	KindLive  = "live"
)

// TradingVenue fetches recent hourly closes and places leveraged market orders.
type TradingVenue interface {
	Name() string
	// FetchRecentCloses returns up to limit closes, oldest first. It never fails:
	// any problem yields an empty slice.
	FetchRecentCloses(ctx context.Context, symbol string, limit int) []float64
	PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.OrderResult, error)
}

// OrderRejectedError reports an order the venue refused or that never got a valid answer.
type OrderRejectedError struct {
	Status  int
	Message string
}

func (e *OrderRejectedError) Error() string {
	if e.Status == 0 {
		return "order rejected: " + e.Message
	}
	return fmt.Sprintf("order rejected: status %d: %s", e.Status, e.Message)
}

// Options carries what the live adapter needs. Paper ignores everything except Clock.
type Options struct {
	APIBase    string
	APIKey     string
	APISecret  string
	Subaccount string
	Proxy      string
	Timeout    time.Duration
	Clock      func() time.Time
}

// New selects a venue implementation by kind.
func New(kind string, opts Options, log zerolog.Logger) (TradingVenue, error) {
	switch kind {
	case KindPaper, "":
		return NewSimulation(opts.Clock), nil
	case KindLive:
		if opts.APIBase == "" {
			return nil, fmt.Errorf("live venue requires an API base URL")
		}
		return NewLive(opts, log), nil
	default:
		return nil, fmt.Errorf("unknown venue %q", kind)
	}
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func dropNonFinite(vals []float64) []float64 {
	out := vals[:0]
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
