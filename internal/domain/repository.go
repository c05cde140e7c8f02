package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundRepository defines the interface for fund persistence operations.
type FundRepository interface {
	// GetByID retrieves a fund by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Fund, error)

	// Create creates a new fund.
	Create(ctx context.Context, fund *Fund) error

	// List retrieves all funds.
	List(ctx context.Context) ([]*Fund, error)
}

// HoldingRepository defines the interface for holding persistence
// operations. Holdings are append-mostly: rows are created on period
// open and closed exactly once, never deleted.
type HoldingRepository interface {
	// GetByID retrieves a holding by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Holding, error)

	// Create creates a new holding.
	Create(ctx context.Context, holding *Holding) error

	// GetByFundAssetPeriod retrieves the holding for one
	// (fund, asset, period), if any.
	GetByFundAssetPeriod(ctx context.Context, fundID uuid.UUID, asset AssetRef, period Period) (*Holding, error)

	// GetHead retrieves the most recent holding of a (fund, asset)
	// chain, open or closed.
	GetHead(ctx context.Context, fundID uuid.UUID, asset AssetRef) (*Holding, error)

	// ListByFundPeriod retrieves all holdings of a fund for one period.
	ListByFundPeriod(ctx context.Context, fundID uuid.UUID, period Period) ([]*Holding, error)

	// Close persists a holding's end balance, end prices and closed flag.
	Close(ctx context.Context, holding *Holding) error
}

// TransferRepository defines the interface for transfer persistence
// operations. Transfers are append-only after period close.
type TransferRepository interface {
	// CreateGroup creates a transfer together with its opposite and fee
	// legs in one atomic write; either all rows are applied or none.
	CreateGroup(ctx context.Context, transfers []*Transfer) error

	// CreateFlow persists a subscription or redemption transfer and the
	// fund's updated share count in the same atomic write, so the booked
	// flow and the share total never diverge.
	CreateFlow(ctx context.Context, flow *Transfer, fundID uuid.UUID, totalShares decimal.Decimal) error

	// ListByHolding retrieves all transfers booked against a holding.
	ListByHolding(ctx context.Context, holdingID uuid.UUID) ([]*Transfer, error)

	// SumByHolding returns the signed sum of transfer amounts booked
	// against a holding, fees included.
	SumByHolding(ctx context.Context, holdingID uuid.UUID) (decimal.Decimal, error)

	// ListFlows retrieves the subscription and redemption transfers of a
	// fund for one period.
	ListFlows(ctx context.Context, fundID uuid.UUID, period Period) ([]*Transfer, error)
}

// OrderRepository defines the interface for order, funding and trade
// persistence operations.
type OrderRepository interface {
	// GetByID retrieves an order by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetByExternalOrderID retrieves an order by the ID the exchange
	// assigned to it.
	GetByExternalOrderID(ctx context.Context, externalID string) (*Order, error)

	// Create creates a new order.
	Create(ctx context.Context, order *Order) error

	// CreateFundings creates all fundings of one order atomically.
	CreateFundings(ctx context.Context, fundings []*OrderFunding) error

	// ListFundings retrieves the fundings of one order.
	ListFundings(ctx context.Context, orderID uuid.UUID) ([]*OrderFunding, error)

	// ListFundingsByFundPeriod retrieves a fund's fundings for one period.
	ListFundingsByFundPeriod(ctx context.Context, fundID uuid.UUID, period Period) ([]*OrderFunding, error)

	// RecordFill persists a trade, the updated fundings and the updated
	// order state/fills in one atomic write.
	RecordFill(ctx context.Context, order *Order, trade *Trade, fundings []*OrderFunding) error

	// UpdateState persists an order state transition without a fill
	// (cancellation, rejection).
	UpdateState(ctx context.Context, orderID uuid.UUID, state OrderState) error

	// ListTrades retrieves the trades of one order.
	ListTrades(ctx context.Context, orderID uuid.UUID) ([]*Trade, error)
}

// RateRepository defines the interface for currency rate and listing
// persistence operations. Both stores are append-only.
type RateRepository interface {
	// AddCurrencyRate records a currency rate snapshot.
	AddCurrencyRate(ctx context.Context, rate *CurrencyRate) error

	// AddListing records a crypto listing snapshot.
	AddListing(ctx context.Context, listing *Listing) error

	// LatestCurrencyRate retrieves the most recent rate for a currency
	// at or before the given time.
	LatestCurrencyRate(ctx context.Context, code string, at time.Time) (*CurrencyRate, error)

	// LatestListing retrieves the most recent listing for a crypto asset
	// at or before the given time.
	LatestListing(ctx context.Context, cryptoID uuid.UUID, at time.Time) (*Listing, error)
}

// NavRepository defines the interface for NAV persistence operations.
type NavRepository interface {
	// GetByFundPeriod retrieves the NAV record for one (fund, period).
	GetByFundPeriod(ctx context.Context, fundID uuid.UUID, period Period) (*Nav, error)

	// Create persists a NAV record and advances the fund's high-water
	// mark to nav.NextHWM in the same atomic write.
	Create(ctx context.Context, nav *Nav) error

	// ListByFund retrieves all NAV records of a fund in period order.
	ListByFund(ctx context.Context, fundID uuid.UUID) ([]*Nav, error)
}
