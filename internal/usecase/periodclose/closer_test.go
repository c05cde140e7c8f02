package periodclose

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/lock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/monitoring"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/ledger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/nav"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/rates"
)

// MockFundRepository is a mock implementation of FundRepository for testing
type MockFundRepository struct {
	mock.Mock
}

func (m *MockFundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fund), args.Error(1)
}

func (m *MockFundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	args := m.Called(ctx, fund)
	return args.Error(0)
}

func (m *MockFundRepository) List(ctx context.Context) ([]*domain.Fund, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Fund), args.Error(1)
}


// MockHoldingRepository is a mock implementation of HoldingRepository for testing
type MockHoldingRepository struct {
	mock.Mock
}

func (m *MockHoldingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Holding, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) Create(ctx context.Context, holding *domain.Holding) error {
	args := m.Called(ctx, holding)
	return args.Error(0)
}

func (m *MockHoldingRepository) GetByFundAssetPeriod(ctx context.Context, fundID uuid.UUID, asset domain.AssetRef, period domain.Period) (*domain.Holding, error) {
	args := m.Called(ctx, fundID, asset, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) GetHead(ctx context.Context, fundID uuid.UUID, asset domain.AssetRef) (*domain.Holding, error) {
	args := m.Called(ctx, fundID, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) ListByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.Holding, error) {
	args := m.Called(ctx, fundID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Holding), args.Error(1)
}

func (m *MockHoldingRepository) Close(ctx context.Context, holding *domain.Holding) error {
	args := m.Called(ctx, holding)
	return args.Error(0)
}

// MockTransferRepository is a mock implementation of TransferRepository for testing
type MockTransferRepository struct {
	mock.Mock
}

func (m *MockTransferRepository) CreateGroup(ctx context.Context, transfers []*domain.Transfer) error {
	args := m.Called(ctx, transfers)
	return args.Error(0)
}

func (m *MockTransferRepository) CreateFlow(ctx context.Context, flow *domain.Transfer, fundID uuid.UUID, totalShares decimal.Decimal) error {
	args := m.Called(ctx, flow, fundID, totalShares)
	return args.Error(0)
}

func (m *MockTransferRepository) ListByHolding(ctx context.Context, holdingID uuid.UUID) ([]*domain.Transfer, error) {
	args := m.Called(ctx, holdingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transfer), args.Error(1)
}

func (m *MockTransferRepository) SumByHolding(ctx context.Context, holdingID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, holdingID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockTransferRepository) ListFlows(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.Transfer, error) {
	args := m.Called(ctx, fundID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transfer), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository for testing
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByExternalOrderID(ctx context.Context, externalID string) (*domain.Order, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateFundings(ctx context.Context, fundings []*domain.OrderFunding) error {
	args := m.Called(ctx, fundings)
	return args.Error(0)
}

func (m *MockOrderRepository) ListFundings(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderFunding, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OrderFunding), args.Error(1)
}

func (m *MockOrderRepository) ListFundingsByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.OrderFunding, error) {
	args := m.Called(ctx, fundID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OrderFunding), args.Error(1)
}

func (m *MockOrderRepository) RecordFill(ctx context.Context, order *domain.Order, trade *domain.Trade, fundings []*domain.OrderFunding) error {
	args := m.Called(ctx, order, trade, fundings)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateState(ctx context.Context, orderID uuid.UUID, state domain.OrderState) error {
	args := m.Called(ctx, orderID, state)
	return args.Error(0)
}

func (m *MockOrderRepository) ListTrades(ctx context.Context, orderID uuid.UUID) ([]*domain.Trade, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Trade), args.Error(1)
}

// MockNavRepository is a mock implementation of NavRepository for testing
type MockNavRepository struct {
	mock.Mock
}

func (m *MockNavRepository) GetByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) (*domain.Nav, error) {
	args := m.Called(ctx, fundID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Nav), args.Error(1)
}

func (m *MockNavRepository) Create(ctx context.Context, nav *domain.Nav) error {
	args := m.Called(ctx, nav)
	return args.Error(0)
}

func (m *MockNavRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Nav, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Nav), args.Error(1)
}

// MockRateRepository is a mock implementation of RateRepository for testing
type MockRateRepository struct {
	mock.Mock
}

func (m *MockRateRepository) AddCurrencyRate(ctx context.Context, rate *domain.CurrencyRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockRateRepository) AddListing(ctx context.Context, listing *domain.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *MockRateRepository) LatestCurrencyRate(ctx context.Context, code string, at time.Time) (*domain.CurrencyRate, error) {
	args := m.Called(ctx, code, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CurrencyRate), args.Error(1)
}

func (m *MockRateRepository) LatestListing(ctx context.Context, cryptoID uuid.UUID, at time.Time) (*domain.Listing, error) {
	args := m.Called(ctx, cryptoID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Listing), args.Error(1)
}

type closerFixture struct {
	fundRepo     *MockFundRepository
	holdingRepo  *MockHoldingRepository
	transferRepo *MockTransferRepository
	orderRepo    *MockOrderRepository
	navRepo      *MockNavRepository
	rateRepo     *MockRateRepository
	closer       *Closer
}

func newCloserFixture(workers int) *closerFixture {
	f := &closerFixture{
		fundRepo:     new(MockFundRepository),
		holdingRepo:  new(MockHoldingRepository),
		transferRepo: new(MockTransferRepository),
		orderRepo:    new(MockOrderRepository),
		navRepo:      new(MockNavRepository),
		rateRepo:     new(MockRateRepository),
	}
	resolver := rates.NewResolver(f.rateRepo, "USD")
	ledgerSvc := ledger.NewService(f.holdingRepo, f.transferRepo)
	navCalc := nav.NewCalculator(f.fundRepo, f.holdingRepo, f.transferRepo, f.orderRepo, f.navRepo, resolver)
	f.closer = NewCloser(
		f.fundRepo,
		f.holdingRepo,
		ledgerSvc,
		navCalc,
		resolver,
		lock.NewLocalLocker(),
		logger.NewNop(),
		monitoring.NewMetrics("test", prometheus.NewRegistry()),
		workers,
	)
	return f
}

func usdFund() *domain.Fund {
	return &domain.Fund{
		ID:                uuid.New(),
		Name:              "Alpha Fund",
		ReportingCurrency: "USD",
		Fees: domain.FeeSchedule{
			Performance: domain.FeeStrategy{Kind: domain.FeeStrategyHighWaterMark, Rate: decimal.RequireFromString("0.2")},
			Admin:       domain.AdminFeePolicy{AnnualRate: decimal.Zero, Frequency: domain.AdminFeeMonthly},
		},
		InitialSharePrice: decimal.NewFromInt(10),
		TotalShares:       decimal.NewFromInt(100),
		HighWaterMark:     decimal.NewFromInt(10),
		InceptionPeriod:   domain.Period("202312"),
	}
}

func TestCloseFund_FullSequence(t *testing.T) {
	// One open USD holding that booked 1000 + 100 over the period. The
	// close finalizes it at 1100, computes the NAV and opens the
	// successor holding carrying that balance forward.
	ctx := context.Background()
	f := newCloserFixture(1)
	fund := usdFund()
	period := domain.Period("202401")
	asset := domain.FiatAsset("USD")

	holding := &domain.Holding{
		ID:           uuid.New(),
		FundID:       fund.ID,
		Asset:        asset,
		Period:       period,
		StartAt:      period.Start(),
		EndAt:        period.End(),
		StartBalance: decimal.NewFromInt(1000),
		LayerIdx:     1,
	}
	prevID := uuid.New()
	holding.PreviousHoldingID = &prevID

	f.fundRepo.On("GetByID", ctx, fund.ID).Return(fund, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fund.ID, period).Return([]*domain.Holding{holding}, nil)
	f.holdingRepo.On("GetByID", ctx, holding.ID).Return(holding, nil)
	f.transferRepo.On("SumByHolding", ctx, holding.ID).Return(decimal.NewFromInt(100), nil)
	f.holdingRepo.On("Close", ctx, mock.MatchedBy(func(h *domain.Holding) bool {
		return h.ID == holding.ID &&
			h.Closed &&
			h.EndBalance.Equal(decimal.NewFromInt(1100)) &&
			h.EndPrices.FundShare.Equal(decimal.NewFromInt(100))
	})).Return(nil)

	f.navRepo.On("GetByFundPeriod", ctx, fund.ID, period).Return(nil, domain.ErrNotFound)
	f.navRepo.On("GetByFundPeriod", ctx, fund.ID, period.Previous()).Return(nil, domain.ErrNotFound)
	f.orderRepo.On("ListFundingsByFundPeriod", ctx, fund.ID, period).Return([]*domain.OrderFunding{}, nil)
	f.transferRepo.On("ListFlows", ctx, fund.ID, period).Return([]*domain.Transfer{}, nil)
	f.navRepo.On("Create", ctx, mock.MatchedBy(func(nav *domain.Nav) bool {
		return nav.TotalValue.Equal(decimal.NewFromInt(1100)) &&
			nav.ShareGross.Equal(decimal.NewFromInt(11)) &&
			nav.ShareNAV.Equal(decimal.RequireFromString("10.8")) &&
			nav.NextHWM.Equal(decimal.RequireFromString("10.8"))
	})).Return(nil)

	next := period.Next()
	f.holdingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, next).Return(nil, domain.ErrNotFound)
	f.holdingRepo.On("GetHead", ctx, fund.ID, asset).Return(holding, nil)
	f.holdingRepo.On("Create", ctx, mock.MatchedBy(func(h *domain.Holding) bool {
		return h.Period == next &&
			h.StartBalance.Equal(decimal.NewFromInt(1100)) &&
			h.PreviousHoldingID != nil && *h.PreviousHoldingID == holding.ID &&
			h.LayerIdx == 2
	})).Return(nil)

	navRecord, err := f.closer.CloseFund(ctx, fund.ID, period)

	assert.NoError(t, err)
	assert.True(t, navRecord.ShareNAV.Equal(decimal.RequireFromString("10.8")))
	f.holdingRepo.AssertExpectations(t)
	f.navRepo.AssertExpectations(t)
}

func TestCloseFund_ReusesRecordedCloseValues(t *testing.T) {
	// A prior run closed the holding at 1.1 but stopped before the NAV
	// was written. An EUR rate backfilled since then must not change the
	// recorded close; the retry would otherwise trip over the immutable
	// holding on every attempt.
	ctx := context.Background()
	f := newCloserFixture(1)
	fund := usdFund()
	period := domain.Period("202401")
	asset := domain.FiatAsset("EUR")

	holding := &domain.Holding{
		ID:           uuid.New(),
		FundID:       fund.ID,
		Asset:        asset,
		Period:       period,
		StartAt:      period.Start(),
		EndAt:        period.End(),
		StartBalance: decimal.NewFromInt(1000),
		EndBalance:   decimal.NewFromInt(1000),
		EndPrices: domain.HoldingPrices{
			RefCurrency: decimal.RequireFromString("1.1"),
			FundShare:   decimal.NewFromInt(100),
		},
		Closed: true,
	}

	f.fundRepo.On("GetByID", ctx, fund.ID).Return(fund, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fund.ID, period).Return([]*domain.Holding{holding}, nil)
	f.holdingRepo.On("GetByID", ctx, holding.ID).Return(holding, nil)

	backfilled := &domain.CurrencyRate{
		ID:           uuid.New(),
		CurrencyCode: "EUR",
		RefCurrency:  decimal.RequireFromString("1.2"),
		Timestamp:    period.End(),
		Source:       "ecb",
	}
	f.rateRepo.On("LatestCurrencyRate", ctx, "EUR", period.End()).Return(backfilled, nil)

	f.navRepo.On("GetByFundPeriod", ctx, fund.ID, period).Return(nil, domain.ErrNotFound)
	f.navRepo.On("GetByFundPeriod", ctx, fund.ID, period.Previous()).Return(nil, domain.ErrNotFound)
	f.orderRepo.On("ListFundingsByFundPeriod", ctx, fund.ID, period).Return([]*domain.OrderFunding{}, nil)
	f.transferRepo.On("ListFlows", ctx, fund.ID, period).Return([]*domain.Transfer{}, nil)
	f.navRepo.On("Create", ctx, mock.Anything).Return(nil)

	next := period.Next()
	f.holdingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, next).Return(nil, domain.ErrNotFound)
	f.holdingRepo.On("GetHead", ctx, fund.ID, asset).Return(holding, nil)
	f.holdingRepo.On("Create", ctx, mock.Anything).Return(nil)

	_, err := f.closer.CloseFund(ctx, fund.ID, period)

	assert.NoError(t, err)
	f.holdingRepo.AssertNotCalled(t, "Close")
}

func TestCloseFund_NoHoldings(t *testing.T) {
	ctx := context.Background()
	f := newCloserFixture(1)
	fund := usdFund()
	period := domain.Period("202401")

	f.fundRepo.On("GetByID", ctx, fund.ID).Return(fund, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fund.ID, period).Return([]*domain.Holding{}, nil)

	_, err := f.closer.CloseFund(ctx, fund.ID, period)

	assert.ErrorIs(t, err, domain.ErrPreconditionNotMet)
}

func TestCloseFund_MissingRateAborts(t *testing.T) {
	ctx := context.Background()
	f := newCloserFixture(1)
	fund := usdFund()
	period := domain.Period("202401")

	holding := &domain.Holding{
		ID:           uuid.New(),
		FundID:       fund.ID,
		Asset:        domain.FiatAsset("EUR"),
		Period:       period,
		StartBalance: decimal.NewFromInt(500),
	}

	f.fundRepo.On("GetByID", ctx, fund.ID).Return(fund, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fund.ID, period).Return([]*domain.Holding{holding}, nil)
	f.holdingRepo.On("GetByID", ctx, holding.ID).Return(holding, nil)
	f.transferRepo.On("SumByHolding", ctx, holding.ID).Return(decimal.Zero, nil)
	f.rateRepo.On("LatestCurrencyRate", ctx, "EUR", period.End()).Return(nil, domain.ErrNotFound)

	_, err := f.closer.CloseFund(ctx, fund.ID, period)

	assert.ErrorIs(t, err, domain.ErrNoRateAvailable)
	f.holdingRepo.AssertNotCalled(t, "Close")
	f.navRepo.AssertNotCalled(t, "Create")
}

func TestCloseFund_InvalidPeriod(t *testing.T) {
	f := newCloserFixture(1)

	_, err := f.closer.CloseFund(context.Background(), uuid.New(), domain.Period("2024-01"))

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRun_CollectsPerFundFailures(t *testing.T) {
	// Both funds fail the holdings precondition; Run reports both
	// instead of stopping at the first.
	ctx := context.Background()
	f := newCloserFixture(2)
	period := domain.Period("202401")
	fundA := usdFund()
	fundB := usdFund()

	f.fundRepo.On("List", ctx).Return([]*domain.Fund{fundA, fundB}, nil)
	f.fundRepo.On("GetByID", ctx, fundA.ID).Return(fundA, nil)
	f.fundRepo.On("GetByID", ctx, fundB.ID).Return(fundB, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fundA.ID, period).Return([]*domain.Holding{}, nil)
	f.holdingRepo.On("ListByFundPeriod", ctx, fundB.ID, period).Return([]*domain.Holding{}, nil)

	err := f.closer.Run(ctx, period)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), fundA.ID.String())
	assert.Contains(t, err.Error(), fundB.ID.String())
}
