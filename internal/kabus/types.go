package kabus

import "github.com/morinok/dipbot/internal/types"

// https://kabucom.github.io/kabusapi/reference/index.html

// Wire state codes from the orders endpoint.
const (
	stateWait       = 1
	stateProcessing = 2
	stateProcessed  = 3
	stateCancelling = 4
	stateDone       = 5
)

type tokenRequest struct {
	APIPassword string `json:"APIPassword"`
}

type tokenResponse struct {
	ResultCode int    `json:"ResultCode"`
	Token      string `json:"Token"`
}

type sendOrderRequest struct {
	Password          string             `json:"Password"`
	Symbol            string             `json:"Symbol"`
	Exchange          int                `json:"Exchange"`
	SecurityType      int                `json:"SecurityType"`
	Side              string             `json:"Side"`
	CashMargin        int                `json:"CashMargin"`
	DelivType         int                `json:"DelivType"`
	FundType          string             `json:"FundType,omitempty"`
	AccountType       int                `json:"AccountType"`
	Qty               int                `json:"Qty"`
	FrontOrderType    int                `json:"FrontOrderType"`
	Price             float64            `json:"Price"`
	ExpireDay         int                `json:"ExpireDay"`
	ReverseLimitOrder *reverseLimitOrder `json:"ReverseLimitOrder,omitempty"`
}

// reverseLimitOrder describes a stop: once the trigger price is touched the
// order converts to a market sell.
type reverseLimitOrder struct {
	TriggerSec        int     `json:"TriggerSec"`
	TriggerPrice      float64 `json:"TriggerPrice"`
	UnderOver         int     `json:"UnderOver"`
	AfterHitOrderType int     `json:"AfterHitOrderType"`
	AfterHitPrice     float64 `json:"AfterHitPrice"`
}

type sendOrderResponse struct {
	Result  int    `json:"Result"`
	OrderID string `json:"OrderId"`
}

type cancelOrderRequest struct {
	OrderID  string `json:"OrderId"`
	Password string `json:"Password"`
}

type cancelOrderResponse struct {
	Result  int    `json:"Result"`
	OrderID string `json:"OrderId"`
}

type wireOrder struct {
	ID       string  `json:"ID"`
	State    int     `json:"State"`
	Symbol   string  `json:"Symbol"`
	Price    float64 `json:"Price"`
	OrderQty float64 `json:"OrderQty"`
	CumQty   float64 `json:"CumQty"`
}

type wirePosition struct {
	Symbol    string  `json:"Symbol"`
	LeavesQty float64 `json:"LeavesQty"`
	Price     float64 `json:"Price"`
}

type registerRequest struct {
	Symbols []registerSymbol `json:"Symbols"`
}

type registerSymbol struct {
	Symbol   string `json:"Symbol"`
	Exchange int    `json:"Exchange"`
}

type apiError struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

// normalizeState maps a wire order to the normalized lifecycle state. Done
// with a positive price means the order executed; Done without one means it
// ended unfilled (cancelled or expired). Processed without Done is the
// broker's rejection path.
func normalizeState(o wireOrder) types.OrderState {
	switch o.State {
	case stateDone:
		if o.Price > 0 {
			return types.OrderFilled
		}
		return types.OrderCancelled
	case stateProcessed:
		return types.OrderFailed
	case stateWait, stateProcessing, stateCancelling:
		return types.OrderWaiting
	default:
		return types.OrderPending
	}
}

func toOrder(o wireOrder) types.Order {
	return types.Order{
		ID:            o.ID,
		State:         normalizeState(o),
		ExecutedPrice: o.Price,
		Quantity:      o.OrderQty,
	}
}
