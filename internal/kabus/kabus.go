// Package kabus is a client for the kabu station REST/WebSocket API used for
// cash equity orders and the realtime price push feed.
package kabus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/morinok/dipbot/internal/logging"
	"github.com/morinok/dipbot/internal/types"
)

const (
	DefaultBaseUrl = "http://localhost:18080/kabusapi"

	sideBuy  = "2"
	sideSell = "1"

	frontOrderMarket = 10
	frontOrderLimit  = 20
	frontOrderStop   = 30
)

var kabusLog = logging.New("kabus")

type Service struct {
	BaseUrl       string
	APIPassword   string
	OrderPassword string
	Symbol        string
	Exchange      int

	token  string
	client *http.Client
}

func NewService(baseUrl, apiPassword, orderPassword, symbol string, exchange int) *Service {
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	return &Service{
		BaseUrl:       baseUrl,
		APIPassword:   apiPassword,
		OrderPassword: orderPassword,
		Symbol:        symbol,
		Exchange:      exchange,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// RefreshToken obtains a fresh session token. Tokens expire when kabu station
// restarts, so every startup calls this before anything else.
func (s *Service) RefreshToken(ctx context.Context) error {
	var resp tokenResponse
	if err := s.do(ctx, http.MethodPost, "/token", tokenRequest{APIPassword: s.APIPassword}, &resp); err != nil {
		return fmt.Errorf("failed to obtain API token: %w", err)
	}
	s.token = resp.Token
	kabusLog.Info("obtained API token")
	return nil
}

// SendMarketBuy submits a cash market buy and returns the broker order id.
func (s *Service) SendMarketBuy(ctx context.Context, qty int) (string, error) {
	req := sendOrderRequest{
		Password:       s.OrderPassword,
		Symbol:         s.Symbol,
		Exchange:       s.Exchange,
		SecurityType:   1,
		Side:           sideBuy,
		CashMargin:     1,
		DelivType:      2,
		FundType:       "AA",
		AccountType:    4,
		Qty:            qty,
		FrontOrderType: frontOrderMarket,
		Price:          0,
		ExpireDay:      0,
	}
	return s.sendOrder(ctx, req)
}

// SendStopSell submits a sell stop: once triggerPrice is touched from above
// the order converts to a market sell.
func (s *Service) SendStopSell(ctx context.Context, qty int, triggerPrice float64) (string, error) {
	req := sendOrderRequest{
		Password:       s.OrderPassword,
		Symbol:         s.Symbol,
		Exchange:       s.Exchange,
		SecurityType:   1,
		Side:           sideSell,
		CashMargin:     1,
		DelivType:      0,
		AccountType:    4,
		Qty:            qty,
		FrontOrderType: frontOrderStop,
		Price:          0,
		ExpireDay:      0,
		ReverseLimitOrder: &reverseLimitOrder{
			TriggerSec:        1,
			TriggerPrice:      triggerPrice,
			UnderOver:         1,
			AfterHitOrderType: 1,
			AfterHitPrice:     0,
		},
	}
	return s.sendOrder(ctx, req)
}

// SendLimitSell submits a limit sell at the given price.
func (s *Service) SendLimitSell(ctx context.Context, qty int, price float64) (string, error) {
	req := sendOrderRequest{
		Password:       s.OrderPassword,
		Symbol:         s.Symbol,
		Exchange:       s.Exchange,
		SecurityType:   1,
		Side:           sideSell,
		CashMargin:     1,
		DelivType:      0,
		AccountType:    4,
		Qty:            qty,
		FrontOrderType: frontOrderLimit,
		Price:          price,
		ExpireDay:      0,
	}
	return s.sendOrder(ctx, req)
}

// SendMarketSell submits a cash market sell.
func (s *Service) SendMarketSell(ctx context.Context, qty int) (string, error) {
	req := sendOrderRequest{
		Password:       s.OrderPassword,
		Symbol:         s.Symbol,
		Exchange:       s.Exchange,
		SecurityType:   1,
		Side:           sideSell,
		CashMargin:     1,
		DelivType:      0,
		AccountType:    4,
		Qty:            qty,
		FrontOrderType: frontOrderMarket,
		Price:          0,
		ExpireDay:      0,
	}
	return s.sendOrder(ctx, req)
}

func (s *Service) sendOrder(ctx context.Context, req sendOrderRequest) (string, error) {
	var resp sendOrderResponse
	if err := s.do(ctx, http.MethodPost, "/sendorder", req, &resp); err != nil {
		return "", fmt.Errorf("failed to send order: %w", err)
	}
	kabusLog.Info("order accepted", "orderId", resp.OrderID, "side", req.Side,
		"frontOrderType", req.FrontOrderType, "qty", req.Qty, "price", req.Price)
	return resp.OrderID, nil
}

// CancelOrder requests cancellation of an outstanding order. Acceptance of
// the request does not mean the order is cancelled; callers confirm via
// Orders.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	var resp cancelOrderResponse
	req := cancelOrderRequest{OrderID: orderID, Password: s.OrderPassword}
	if err := s.do(ctx, http.MethodPut, "/cancelorder", req, &resp); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	kabusLog.Info("cancel accepted", "orderId", orderID)
	return nil
}

// Orders returns today's orders with normalized lifecycle states. The list
// endpoint is used instead of a single-order lookup because a just-accepted
// order can briefly be missing from either view.
func (s *Service) Orders(ctx context.Context) ([]types.Order, error) {
	var wire []wireOrder
	if err := s.do(ctx, http.MethodGet, "/orders?product=0", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]types.Order, 0, len(wire))
	for _, o := range wire {
		orders = append(orders, toOrder(o))
	}
	return orders, nil
}

// Held is one cash position reported by the broker.
type Held struct {
	Symbol string
	Qty    float64
	Price  float64
}

// Positions returns currently held cash positions.
func (s *Service) Positions(ctx context.Context) ([]Held, error) {
	var wire []wirePosition
	if err := s.do(ctx, http.MethodGet, "/positions?product=0", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	held := make([]Held, 0, len(wire))
	for _, p := range wire {
		held = append(held, Held{Symbol: p.Symbol, Qty: p.LeavesQty, Price: p.Price})
	}
	return held, nil
}

// RegisterSymbol subscribes the configured symbol to the push feed. Must be
// called before opening the WebSocket or no price messages arrive.
func (s *Service) RegisterSymbol(ctx context.Context) error {
	req := registerRequest{
		Symbols: []registerSymbol{{Symbol: s.Symbol, Exchange: s.Exchange}},
	}
	if err := s.do(ctx, http.MethodPut, "/register", req, nil); err != nil {
		return fmt.Errorf("failed to register symbol %s: %w", s.Symbol, err)
	}
	kabusLog.Info("registered symbol for push feed", "symbol", s.Symbol)
	return nil
}

func (s *Service) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseUrl+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("X-API-KEY", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("%s %s: status code %d, could not read error body: %w",
				method, path, resp.StatusCode, readErr)
		}
		var apiErr apiError
		if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: status code %d, code %d: %s",
				method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%s %s: status code %d: %s", method, path, resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
