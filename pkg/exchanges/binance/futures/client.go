package futures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trading-engine/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client handles Binance USDT-M futures order entry. It implements
// common.Gateway and common.PositionReader.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *common.TimeSync
	weight     *common.WeightTracker
	pacer      *rate.Limiter
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// 2400 weight/min for futures; pace signed calls well under it.
		weight: common.NewWeightTracker(2400, time.Minute),
		pacer:  rate.NewLimiter(rate.Limit(20), 40),
	}
	c.timeSync = common.NewTimeSync(c.GetServerTime)
	return c
}

// StartTimeSync begins periodic clock synchronization with the venue.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) now() int64 {
	if c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// SubmitBatch places up to common.MaxBatchSize orders in one signed call.
// A transport or whole-request failure returns a non-nil error; otherwise
// every order is accounted for in the BatchResult, acked or rejected.
func (c *Client) SubmitBatch(ctx context.Context, orders []common.OrderRequest) (common.BatchResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.BatchResult{}, errors.New("binance futures: API key/secret required")
	}
	if len(orders) == 0 {
		return common.BatchResult{}, common.ErrEmptyBatch
	}
	if len(orders) > common.MaxBatchSize {
		return common.BatchResult{}, common.ErrBatchTooLarge
	}

	wire := make([]batchOrder, 0, len(orders))
	for _, o := range orders {
		wire = append(wire, toBatchOrder(o))
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return common.BatchResult{}, fmt.Errorf("encode batch: %w", err)
	}

	params := url.Values{}
	params.Set("batchOrders", string(payload))
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/batchOrders", params)
	if err != nil {
		return common.BatchResult{}, err
	}

	var items []batchItem
	if err := json.Unmarshal(body, &items); err != nil {
		return common.BatchResult{}, fmt.Errorf("decode batch response: %w", err)
	}

	res := common.BatchResult{Requested: len(orders)}
	for i, it := range items {
		if it.failed() {
			res.Failures = append(res.Failures, common.OrderError{Index: i, Code: it.Code, Msg: it.Msg})
			continue
		}
		res.Acks = append(res.Acks, common.OrderAck{
			ExchangeOrderID: strconv.FormatInt(it.OrderID, 10),
			ClientID:        it.ClientOrderID,
			Symbol:          it.Symbol,
			Status:          mapStatus(it.Status),
		})
	}
	return res, nil
}

// CancelAllOpenOrders cancels all open orders for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance futures: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	_, err := c.doSigned(ctx, http.MethodDelete, c.baseURL+"/fapi/v1/allOpenOrders", params)
	return err
}

// Positions returns the venue's authoritative open positions.
func (c *Client) Positions(ctx context.Context) ([]common.PositionInfo, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance futures: API key/secret required")
	}
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var rows []positionRisk
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]common.PositionInfo, 0, len(rows))
	for _, r := range rows {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		out = append(out, common.PositionInfo{
			Symbol:       r.Symbol,
			PositionSide: common.PositionSide(r.PositionSide),
			Qty:          qty,
			EntryPrice:   entry,
		})
	}
	return out, nil
}

// MarkPrice fetches the current mark price for a symbol. The endpoint is
// public, so no signing is involved.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/premiumIndex?symbol="+url.QueryEscape(symbol), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	c.weight.ObserveHeader(resp.Header.Get("X-MBX-USED-WEIGHT-1M"))
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("mark price status %d: %s", resp.StatusCode, string(body))
	}
	var res struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode mark price: %w", err)
	}
	return strconv.ParseFloat(res.MarkPrice, 64)
}

// GetServerTime fetches futures server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server time status %d: %s", resp.StatusCode, string(b))
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

// doSigned handles pacing, signing and sending requests. The signature
// covers the encoded query string and is appended after it, so the
// signed bytes go over the wire unchanged.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	encoded += "&signature=" + sign(encoded, c.cfg.APISecret)
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.weight.ObserveHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance futures %s %s status %d: %s", method, endpoint, res.StatusCode, string(body))
	}
	return body, nil
}

func toBatchOrder(o common.OrderRequest) batchOrder {
	b := batchOrder{
		Symbol:           o.Symbol,
		Side:             strings.ToUpper(string(o.Side)),
		Type:             strings.ToUpper(string(o.Type)),
		NewClientOrderID: o.ClientID,
		WorkingType:      o.WorkingType,
	}
	if o.Qty > 0 {
		b.Quantity = formatFloat(o.Qty)
	}
	if o.Type == common.OrderTypeLimit {
		b.Price = formatFloat(o.Price)
		tif := o.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		b.TimeInForce = string(tif)
	}
	if o.Type == common.OrderTypeStopMarket || o.Type == common.OrderTypeTakeProfitMarket {
		b.StopPrice = formatFloat(o.StopPrice)
	}
	if o.PositionSide != "" {
		b.PositionSide = string(o.PositionSide)
	}
	// Hedge-mode orders must not carry reduceOnly; positionSide implies it.
	if o.ReduceOnly && o.PositionSide == "" {
		b.ReduceOnly = "true"
	}
	return b
}
