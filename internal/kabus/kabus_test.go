package kabus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/morinok/dipbot/internal/types"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewService(srv.URL, "api-pass", "order-pass", "7203", 1)
	return s
}

func TestRefreshTokenSetsHeader(t *testing.T) {
	var sawToken string
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			assert.Equal(t, http.MethodPost, r.Method)
			var req tokenRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "api-pass", req.APIPassword)
			json.NewEncoder(w).Encode(tokenResponse{ResultCode: 0, Token: "tok-123"})
		case "/orders":
			sawToken = r.Header.Get("X-API-KEY")
			json.NewEncoder(w).Encode([]wireOrder{})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	assert.NoError(t, s.RefreshToken(ctx))

	_, err := s.Orders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "tok-123", sawToken)
}

func TestSendMarketBuy(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendorder", r.URL.Path)
		var req sendOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-pass", req.Password)
		assert.Equal(t, "7203", req.Symbol)
		assert.Equal(t, sideBuy, req.Side)
		assert.Equal(t, frontOrderMarket, req.FrontOrderType)
		assert.Equal(t, 100, req.Qty)
		assert.Nil(t, req.ReverseLimitOrder)
		json.NewEncoder(w).Encode(sendOrderResponse{Result: 0, OrderID: "ORD-1"})
	})

	id, err := s.SendMarketBuy(context.Background(), 100)
	assert.NoError(t, err)
	assert.Equal(t, "ORD-1", id)
}

func TestSendStopSellCarriesTrigger(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, sideSell, req.Side)
		assert.Equal(t, frontOrderStop, req.FrontOrderType)
		if assert.NotNil(t, req.ReverseLimitOrder) {
			assert.Equal(t, 1480.0, req.ReverseLimitOrder.TriggerPrice)
			assert.Equal(t, 1, req.ReverseLimitOrder.UnderOver)
			assert.Equal(t, 1, req.ReverseLimitOrder.AfterHitOrderType)
		}
		json.NewEncoder(w).Encode(sendOrderResponse{Result: 0, OrderID: "ORD-2"})
	})

	id, err := s.SendStopSell(context.Background(), 100, 1480.0)
	assert.NoError(t, err)
	assert.Equal(t, "ORD-2", id)
}

func TestCancelOrder(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cancelorder", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD-3", req["OrderId"], "cancel payload keys the id as OrderId")
		assert.Equal(t, "order-pass", req["Password"])
		json.NewEncoder(w).Encode(cancelOrderResponse{Result: 0, OrderID: "ORD-3"})
	})

	assert.NoError(t, s.CancelOrder(context.Background(), "ORD-3"))
}

func TestOrdersNormalizesStates(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("product"))
		json.NewEncoder(w).Encode([]wireOrder{
			{ID: "a", State: stateDone, Price: 1502.5, OrderQty: 100},
			{ID: "b", State: stateDone, Price: 0},
			{ID: "c", State: stateProcessed},
			{ID: "d", State: stateWait},
		})
	})

	orders, err := s.Orders(context.Background())
	assert.NoError(t, err)
	assert.Len(t, orders, 4)
	assert.Equal(t, types.OrderFilled, orders[0].State)
	assert.Equal(t, 1502.5, orders[0].ExecutedPrice)
	assert.Equal(t, types.OrderCancelled, orders[1].State)
	assert.Equal(t, types.OrderFailed, orders[2].State)
	assert.Equal(t, types.OrderWaiting, orders[3].State)
}

func TestErrorBodySurfaced(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Code: 4001001, Message: "bad password"})
	})

	_, err := s.SendMarketBuy(context.Background(), 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "4001001")
	assert.Contains(t, err.Error(), "bad password")
}
