package futures

import "trading-engine/pkg/exchanges/common"

// batchOrder is the wire shape of one order inside a batchOrders call.
// All numeric fields are strings per the venue's API.
type batchOrder struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Type             string `json:"type"`
	Quantity         string `json:"quantity,omitempty"`
	Price            string `json:"price,omitempty"`
	StopPrice        string `json:"stopPrice,omitempty"`
	TimeInForce      string `json:"timeInForce,omitempty"`
	ReduceOnly       string `json:"reduceOnly,omitempty"`
	NewClientOrderID string `json:"newClientOrderId,omitempty"`
	PositionSide     string `json:"positionSide,omitempty"`
	WorkingType      string `json:"workingType,omitempty"`
}

// batchItem is one element of the batchOrders response. The venue mixes
// acks and rejections in a single array; rejections carry a non-zero
// code and no orderId.
type batchItem struct {
	Code          int    `json:"code"`
	Msg           string `json:"msg"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
}

func (it batchItem) failed() bool {
	return it.Code != 0
}

// positionRisk is the venue's positionRisk row.
type positionRisk struct {
	Symbol       string `json:"symbol"`
	PositionSide string `json:"positionSide"`
	PositionAmt  string `json:"positionAmt"`
	EntryPrice   string `json:"entryPrice"`
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}
