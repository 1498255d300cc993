package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
)

const (
	headerAPIKey    = "X-API-KEY"
	headerTimestamp = "X-API-TIMESTAMP"
	headerSignature = "X-API-SIGNATURE"

	defaultSubaccount = "default"
)

// Live talks to the venue REST API with HMAC-signed requests.
type Live struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Subaccount string
	Client     *http.Client

	clock func() time.Time
	log   zerolog.Logger
}

// NewLive creates a live venue adapter with optional proxy support.
func NewLive(opts Options, log zerolog.Logger) *Live {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Live{
		BaseURL:    strings.TrimRight(opts.APIBase, "/"),
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		Subaccount: opts.Subaccount,
		Client:     newHTTPClient(opts.Proxy, opts.Timeout),
		clock:      clock,
		log:        log.With().Str("venue", KindLive).Logger(),
	}
}

func (l *Live) Name() string { return KindLive }

type kline struct {
	OpenTime int64           `json:"openTime"`
	Close    json.RawMessage `json:"close"`
}

// closeValue parses a close reported either as a JSON number or a quoted
// decimal string.
func (k kline) closeValue() (float64, bool) {
	raw := strings.TrimSpace(string(k.Close))
	if raw == "" || raw == "null" {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.Trim(raw, `"`))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// chronological reports whether every bar carries an open time.
func chronological(bars []kline) bool {
	for _, b := range bars {
		if b.OpenTime == 0 {
			return false
		}
	}
	return true
}

func (l *Live) FetchRecentCloses(ctx context.Context, symbol string, limit int) []float64 {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", "60m")
	q.Set("limit", strconv.Itoa(limit))
	path := "/market/klines?" + q.Encode()

	resp, err := l.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		l.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch closes failed")
		return []float64{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		l.log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("fetch closes rejected")
		return []float64{}
	}

	var bars []kline
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		l.log.Warn().Err(err).Msg("decode closes failed")
		return []float64{}
	}
	// Without open times on every bar the venue order is taken as-is.
	if chronological(bars) {
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].OpenTime < bars[j].OpenTime })
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	closes := make([]float64, 0, len(bars))
	skipped := 0
	for _, b := range bars {
		v, ok := b.closeValue()
		if !ok {
			skipped++
			continue
		}
		closes = append(closes, v)
	}
	if skipped > 0 {
		l.log.Warn().Int("skipped", skipped).Str("symbol", symbol).Msg("dropped unparsable closes")
	}
	return dropNonFinite(closes)
}

type orderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          model.Side      `json:"side"`
	Leverage      int             `json:"leverage"`
	Type          string          `json:"type"`
	Notional      decimal.Decimal `json:"notional"`
	Subaccount    string          `json:"subaccount"`
	TimeInForce   string          `json:"tif"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
}

type orderResponse struct {
	OrderID   string          `json:"orderId"`
	Status    string          `json:"status"`
	FillPrice decimal.Decimal `json:"fillPrice"`
	Message   string          `json:"message"`
}

// PlaceOrder submits an IOC market order. Transport failures, non-2xx answers
// and responses without an order id are all reported as *OrderRejectedError.
func (l *Live) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.OrderResult, error) {
	sub := intent.Subaccount
	if sub == "" {
		sub = l.Subaccount
	}
	if sub == "" {
		sub = defaultSubaccount
	}
	body, err := json.Marshal(orderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Leverage:      intent.Leverage,
		Type:          "market",
		Notional:      intent.Notional,
		Subaccount:    sub,
		TimeInForce:   "ioc",
		ClientOrderID: intent.ClientOrderID,
	})
	if err != nil {
		return nil, &OrderRejectedError{Message: fmt.Sprintf("encode order: %v", err)}
	}

	resp, err := l.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, &OrderRejectedError{Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OrderRejectedError{Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &OrderRejectedError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var out orderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &OrderRejectedError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	status, ok := parseStatus(out.Status)
	if !ok {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("status %q", out.Status)
		}
		return nil, &OrderRejectedError{Status: resp.StatusCode, Message: msg}
	}
	if out.OrderID == "" {
		return nil, &OrderRejectedError{Status: resp.StatusCode, Message: "malformed response: missing orderId"}
	}

	return &model.OrderResult{
		OrderID:   out.OrderID,
		Status:    status,
		FillPrice: out.FillPrice.InexactFloat64(),
		Timestamp: l.clock(),
	}, nil
}

func parseStatus(s string) (model.OrderStatus, bool) {
	switch strings.ToLower(s) {
	case "filled", "ok":
		return model.OrderFilled, true
	case "accepted", "new", "open", "":
		return model.OrderAccepted, true
	default:
		return model.OrderRejected, false
	}
}

func (l *Live) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, l.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	ts := strconv.FormatInt(l.clock().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, l.APIKey)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, Sign(l.APISecret, ts, method, path, body))

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, strings.SplitN(path, "?", 2)[0], err)
	}
	return resp, nil
}

// Sign returns the hex HMAC-SHA256 of timestamp+method+path+body.
func Sign(secret, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
