package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a pooled trade intent.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderState is a node of the order state machine:
//
//	New -> PartiallyFilled -> Filled
//	New -> Cancelled | Rejected
//	PartiallyFilled -> Cancelled (residual cancellation)
//
// Filled, Cancelled and Rejected are terminal.
type OrderState string

const (
	OrderStateNew             OrderState = "NEW"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCancelled       OrderState = "CANCELLED"
	OrderStateRejected        OrderState = "REJECTED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderState) Terminal() bool {
	return s == OrderStateFilled || s == OrderStateCancelled || s == OrderStateRejected
}

// CanTransition reports whether the state machine permits s -> to.
func (s OrderState) CanTransition(to OrderState) bool {
	switch s {
	case OrderStateNew:
		return to == OrderStatePartiallyFilled || to == OrderStateFilled ||
			to == OrderStateCancelled || to == OrderStateRejected
	case OrderStatePartiallyFilled:
		return to == OrderStatePartiallyFilled || to == OrderStateFilled ||
			to == OrderStateCancelled
	default:
		return false
	}
}

// Order is a pooled trade intent sent to an exchange on behalf of one or
// more co-investing funds. The exchange is the sole source of truth for
// fills; the ledger never infers them.
type Order struct {
	ID              uuid.UUID
	Account         string // exchange wallet/account label
	BaseCryptoID    uuid.UUID
	QuoteAsset      AssetRef
	Side            OrderSide
	Type            OrderType
	State           OrderState
	Price           decimal.Decimal // unit price for limit orders
	Amount          decimal.Decimal // committed base quantity
	Total           decimal.Decimal // committed quote total
	MakerFilled     decimal.Decimal
	TakerFilled     decimal.Decimal
	Period          Period
	ExternalOrderID string
	CreatedAt       time.Time
}

// Validate ensures the order adheres to domain rules.
func (o *Order) Validate() error {
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: order side must be BUY or SELL", ErrValidation)
	}
	if o.Type != OrderTypeLimit && o.Type != OrderTypeMarket {
		return fmt.Errorf("%w: order type must be LIMIT or MARKET", ErrValidation)
	}
	if o.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: order amount must be positive", ErrValidation)
	}
	if err := o.QuoteAsset.Validate(); err != nil {
		return err
	}
	return o.Period.Validate()
}

// Filled returns the total executed base quantity across both fill sides.
func (o *Order) Filled() decimal.Decimal {
	return o.MakerFilled.Add(o.TakerFilled)
}

// OpenAmount returns the committed quantity not yet executed. The
// remainder of a partial fill is simply unexecuted and may still be
// cancelled.
func (o *Order) OpenAmount() decimal.Decimal {
	return o.Amount.Sub(o.Filled())
}

// OrderFunding is one fund's proportional share of a pooled order,
// tagged to a booking period. Percentages over all fundings of one
// order sum to exactly 100.
type OrderFunding struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	FundID     uuid.UUID
	Period     Period
	Percentage decimal.Decimal // 0-100
	Amount     decimal.Decimal // executed base quantity apportioned to the fund
	Total      decimal.Decimal // executed quote total apportioned to the fund
}

// Validate ensures the funding adheres to domain rules.
func (f *OrderFunding) Validate() error {
	if f.OrderID == uuid.Nil || f.FundID == uuid.Nil {
		return fmt.Errorf("%w: order funding must reference an order and a fund", ErrValidation)
	}
	if f.Percentage.LessThanOrEqual(decimal.Zero) || f.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: funding percentage must be in (0, 100]", ErrValidation)
	}
	return f.Period.Validate()
}

// Trade is a single fill reported by the exchange against an order.
type Trade struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	Price           decimal.Decimal
	Executed        decimal.Decimal // base quantity of this fill
	Total           decimal.Decimal // quote total of this fill
	Fee             decimal.Decimal
	Maker           bool
	ExternalTradeID string
	ExternalTxID    string
	Time            time.Time
}

// Validate ensures the trade adheres to domain rules.
func (t *Trade) Validate() error {
	if t.OrderID == uuid.Nil {
		return fmt.Errorf("%w: trade must reference an order", ErrValidation)
	}
	if t.Executed.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: trade executed quantity must be positive", ErrValidation)
	}
	if t.Price.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: trade price cannot be negative", ErrValidation)
	}
	return nil
}
