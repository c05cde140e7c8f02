package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s %q: %v", domain.ErrExternalAPI, field, value, err)
	}
	return d, nil
}

// convertState maps the API's order status to the ledger state machine.
// EXPIRED carries no fill beyond what was already reported, so it lands
// on Cancelled.
func convertState(status binance.OrderStatusType) (domain.OrderState, error) {
	switch status {
	case binance.OrderStatusTypeNew:
		return domain.OrderStateNew, nil
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderStatePartiallyFilled, nil
	case binance.OrderStatusTypeFilled:
		return domain.OrderStateFilled, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return domain.OrderStateCancelled, nil
	case binance.OrderStatusTypeRejected:
		return domain.OrderStateRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown order status %q", domain.ErrExternalAPI, status)
	}
}

func convertOrder(o *binance.Order) (domain.ExchangeOrder, error) {
	state, err := convertState(o.Status)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}
	price, err := parseDecimal("order price", o.Price)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}
	amount, err := parseDecimal("order quantity", o.OrigQuantity)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}
	executed, err := parseDecimal("executed quantity", o.ExecutedQuantity)
	if err != nil {
		return domain.ExchangeOrder{}, err
	}

	return domain.ExchangeOrder{
		ExternalID: strconv.FormatInt(o.OrderID, 10),
		Symbol:     o.Symbol,
		Side:       domain.OrderSide(o.Side),
		Type:       domain.OrderType(o.Type),
		State:      state,
		Price:      price,
		Amount:     amount,
		Executed:   executed,
		CreatedAt:  time.UnixMilli(o.Time),
	}, nil
}

func convertTrade(t *binance.TradeV3) (domain.ExchangeTrade, error) {
	price, err := parseDecimal("trade price", t.Price)
	if err != nil {
		return domain.ExchangeTrade{}, err
	}
	executed, err := parseDecimal("trade quantity", t.Quantity)
	if err != nil {
		return domain.ExchangeTrade{}, err
	}
	total, err := parseDecimal("trade quote quantity", t.QuoteQuantity)
	if err != nil {
		return domain.ExchangeTrade{}, err
	}
	fee, err := parseDecimal("trade commission", t.Commission)
	if err != nil {
		return domain.ExchangeTrade{}, err
	}

	return domain.ExchangeTrade{
		ExternalID:      strconv.FormatInt(t.ID, 10),
		ExternalOrderID: strconv.FormatInt(t.OrderID, 10),
		Price:           price,
		Executed:        executed,
		Total:           total,
		Fee:             fee,
		FeeAsset:        t.CommissionAsset,
		Maker:           t.IsMaker,
		Time:            time.UnixMilli(t.Time),
	}, nil
}

// convertOrderUpdate turns one execution report into an order snapshot
// plus, when the report carries an execution, the incremental fill.
func convertOrderUpdate(u binance.WsOrderUpdate) (domain.OrderUpdate, error) {
	state, err := convertState(binance.OrderStatusType(u.Status))
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	price, err := parseDecimal("update price", u.Price)
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	amount, err := parseDecimal("update volume", u.Volume)
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	executed, err := parseDecimal("update filled volume", u.FilledVolume)
	if err != nil {
		return domain.OrderUpdate{}, err
	}

	update := domain.OrderUpdate{
		Order: domain.ExchangeOrder{
			ExternalID: strconv.FormatInt(u.Id, 10),
			Symbol:     u.Symbol,
			Side:       domain.OrderSide(u.Side),
			Type:       domain.OrderType(u.Type),
			State:      state,
			Price:      price,
			Amount:     amount,
			Executed:   executed,
			CreatedAt:  time.UnixMilli(u.CreateTime),
		},
	}

	latest, err := parseDecimal("update latest volume", u.LatestVolume)
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	if latest.IsPositive() {
		latestPrice, err := parseDecimal("update latest price", u.LatestPrice)
		if err != nil {
			return domain.OrderUpdate{}, err
		}
		fee, err := parseDecimal("update fee cost", u.FeeCost)
		if err != nil {
			return domain.OrderUpdate{}, err
		}
		update.Trade = &domain.ExchangeTrade{
			ExternalID:      strconv.FormatInt(u.TradeId, 10),
			ExternalOrderID: strconv.FormatInt(u.Id, 10),
			Price:           latestPrice,
			Executed:        latest,
			Total:           latest.Mul(latestPrice),
			Fee:             fee,
			FeeAsset:        u.FeeAsset,
			Maker:           u.IsMaker,
			Time:            time.UnixMilli(u.TransactionTime),
		}
	}
	return update, nil
}
