package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeOrder is an order fact reported by the exchange collaborator.
// The exchange is the sole source of truth for order and trade facts;
// the ledger core never infers fills itself.
type ExchangeOrder struct {
	ExternalID string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	State      OrderState
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Executed   decimal.Decimal
	CreatedAt  time.Time
}

// ExchangeTrade is a fill fact reported by the exchange collaborator.
type ExchangeTrade struct {
	ExternalID      string
	ExternalOrderID string
	ExternalTxID    string
	Price           decimal.Decimal
	Executed        decimal.Decimal
	Total           decimal.Decimal
	Fee             decimal.Decimal
	FeeAsset        string
	Maker           bool
	Time            time.Time
}

// ExchangeBalance is an account balance snapshot from the exchange.
type ExchangeBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// OrderUpdate is one event on the exchange's order-update stream.
type OrderUpdate struct {
	Order ExchangeOrder
	Trade *ExchangeTrade // set when the update carries a fill
}

// ExchangeClient is the trading-API collaborator consumed at the
// boundary. Implementations retry transient failures internally; the
// core only sees clean successes or terminal ErrExternalAPI failures.
type ExchangeClient interface {
	// GetOrders retrieves the account's orders on a pair since a time.
	GetOrders(ctx context.Context, pair string, since time.Time) ([]ExchangeOrder, error)

	// GetOrderTrades retrieves the fills of one order.
	GetOrderTrades(ctx context.Context, pair string, externalOrderID string) ([]ExchangeTrade, error)

	// GetBalances retrieves the account's balance snapshot.
	GetBalances(ctx context.Context) ([]ExchangeBalance, error)

	// SubscribeOrderUpdates streams order/trade events until ctx is
	// done. The returned stop function tears the stream down.
	SubscribeOrderUpdates(ctx context.Context, updates chan<- OrderUpdate) (stop func(), err error)
}

// ExplorerBalance is a wallet balance snapshot from a block explorer.
type ExplorerBalance struct {
	Symbol   string
	Contract string // token contract, empty for the native coin
	Balance  decimal.Decimal
}

// ExplorerClient is the block-explorer collaborator feeding on-chain
// holding updates.
type ExplorerClient interface {
	// GetBalances retrieves a wallet's native and token balances.
	GetBalances(ctx context.Context, walletAddress string, tokenContracts []string) ([]ExplorerBalance, error)
}
