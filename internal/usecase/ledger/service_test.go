package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

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

func testFund() *domain.Fund {
	return &domain.Fund{
		ID:                uuid.New(),
		Name:              "Alpha Fund",
		ReportingCurrency: "USD",
		Fees: domain.FeeSchedule{
			Performance: domain.FeeStrategy{Kind: domain.FeeStrategyHighWaterMark, Rate: decimal.RequireFromString("0.2")},
			Admin:       domain.AdminFeePolicy{AnnualRate: decimal.RequireFromString("0.01"), Frequency: domain.AdminFeeMonthly},
		},
		InitialSharePrice: decimal.NewFromInt(10),
		InceptionPeriod:   domain.Period("202401"),
	}
}

func TestOpenHolding_Inception(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	mockTransferRepo := new(MockTransferRepository)
	service := NewService(mockHoldingRepo, mockTransferRepo)

	fund := testFund()
	asset := domain.FiatAsset("USD")

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202401")).
		Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("GetHead", ctx, fund.ID, asset).Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("Create", ctx, mock.MatchedBy(func(h *domain.Holding) bool {
		return h.FundID == fund.ID &&
			h.Period == domain.Period("202401") &&
			h.PreviousHoldingID == nil &&
			h.LayerIdx == 0 &&
			h.StartBalance.IsZero()
	})).Return(nil)

	holding, err := service.OpenHolding(ctx, fund, asset, domain.Period("202401"))

	assert.NoError(t, err)
	assert.NotNil(t, holding)
	assert.False(t, holding.Closed)
	mockHoldingRepo.AssertExpectations(t)
}

func TestOpenHolding_NotInceptionWithoutChain(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fund := testFund()
	asset := domain.FiatAsset("USD")

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202403")).
		Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("GetHead", ctx, fund.ID, asset).Return(nil, domain.ErrNotFound)

	holding, err := service.OpenHolding(ctx, fund, asset, domain.Period("202403"))

	assert.Nil(t, holding)
	assert.ErrorIs(t, err, domain.ErrChainBroken)
	mockHoldingRepo.AssertNotCalled(t, "Create")
}

func TestOpenHolding_CopiesPredecessorState(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fund := testFund()
	asset := domain.FiatAsset("USD")
	head := &domain.Holding{
		ID:         uuid.New(),
		FundID:     fund.ID,
		Asset:      asset,
		Period:     domain.Period("202401"),
		EndBalance: decimal.NewFromInt(1500),
		EndPrices: domain.HoldingPrices{
			RefCurrency: decimal.NewFromInt(1),
			RefCrypto:   decimal.RequireFromString("0.000025"),
			FundShare:   decimal.NewFromInt(60),
		},
		LayerIdx: 0,
		Closed:   true,
	}

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202402")).
		Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("GetHead", ctx, fund.ID, asset).Return(head, nil)
	mockHoldingRepo.On("Create", ctx, mock.MatchedBy(func(h *domain.Holding) bool {
		return h.PreviousHoldingID != nil && *h.PreviousHoldingID == head.ID &&
			h.StartBalance.Equal(head.EndBalance) &&
			h.StartPrices.RefCrypto.Equal(head.EndPrices.RefCrypto) &&
			h.LayerIdx == 1
	})).Return(nil)

	holding, err := service.OpenHolding(ctx, fund, asset, domain.Period("202402"))

	assert.NoError(t, err)
	assert.True(t, holding.ChainsFrom(head))
	mockHoldingRepo.AssertExpectations(t)
}

func TestOpenHolding_PredecessorStillOpen(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fund := testFund()
	asset := domain.FiatAsset("USD")
	head := &domain.Holding{
		ID:     uuid.New(),
		FundID: fund.ID,
		Asset:  asset,
		Period: domain.Period("202401"),
		Closed: false,
	}

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202402")).
		Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("GetHead", ctx, fund.ID, asset).Return(head, nil)

	_, err := service.OpenHolding(ctx, fund, asset, domain.Period("202402"))

	assert.ErrorIs(t, err, domain.ErrChainBroken)
	mockHoldingRepo.AssertNotCalled(t, "Create")
}

func TestOpenHolding_PeriodGap(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fund := testFund()
	asset := domain.FiatAsset("USD")
	head := &domain.Holding{
		ID:     uuid.New(),
		FundID: fund.ID,
		Asset:  asset,
		Period: domain.Period("202401"),
		Closed: true,
	}

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202404")).
		Return(nil, domain.ErrNotFound)
	mockHoldingRepo.On("GetHead", ctx, fund.ID, asset).Return(head, nil)

	_, err := service.OpenHolding(ctx, fund, asset, domain.Period("202404"))

	assert.ErrorIs(t, err, domain.ErrChainBroken)
}

func TestOpenHolding_AlreadyOpenForPeriod(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fund := testFund()
	asset := domain.FiatAsset("USD")
	existing := &domain.Holding{ID: uuid.New(), FundID: fund.ID, Asset: asset, Period: domain.Period("202401")}

	mockHoldingRepo.On("GetByFundAssetPeriod", ctx, fund.ID, asset, domain.Period("202401")).
		Return(existing, nil)

	_, err := service.OpenHolding(ctx, fund, asset, domain.Period("202401"))

	assert.ErrorIs(t, err, domain.ErrChainBroken)
	mockHoldingRepo.AssertNotCalled(t, "GetHead")
}

func TestCloseHolding_Idempotent(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	endBalance := decimal.NewFromInt(2000)
	endPrices := domain.HoldingPrices{
		RefCurrency: decimal.NewFromInt(1),
		FundShare:   decimal.NewFromInt(100),
	}
	closed := &domain.Holding{
		ID:         uuid.New(),
		FundID:     uuid.New(),
		Asset:      domain.FiatAsset("USD"),
		Period:     domain.Period("202401"),
		EndBalance: endBalance,
		EndPrices:  endPrices,
		Closed:     true,
	}

	mockHoldingRepo.On("GetByID", ctx, closed.ID).Return(closed, nil)

	holding, err := service.CloseHolding(ctx, closed.ID, endBalance, endPrices)

	assert.NoError(t, err)
	assert.Equal(t, closed, holding)
	mockHoldingRepo.AssertNotCalled(t, "Close")
}

func TestCloseHolding_DivergentRecloseFails(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	closed := &domain.Holding{
		ID:         uuid.New(),
		FundID:     uuid.New(),
		Asset:      domain.FiatAsset("USD"),
		Period:     domain.Period("202401"),
		EndBalance: decimal.NewFromInt(2000),
		Closed:     true,
	}

	mockHoldingRepo.On("GetByID", ctx, closed.ID).Return(closed, nil)

	_, err := service.CloseHolding(ctx, closed.ID, decimal.NewFromInt(1999), domain.HoldingPrices{})

	assert.ErrorIs(t, err, domain.ErrImmutableRecord)
}

func TestCloseHolding_ZeroBalance(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	open := &domain.Holding{
		ID:     uuid.New(),
		FundID: uuid.New(),
		Asset:  domain.FiatAsset("EUR"),
		Period: domain.Period("202401"),
	}

	mockHoldingRepo.On("GetByID", ctx, open.ID).Return(open, nil)
	mockHoldingRepo.On("Close", ctx, mock.MatchedBy(func(h *domain.Holding) bool {
		return h.Closed && h.EndBalance.IsZero()
	})).Return(nil)

	holding, err := service.CloseHolding(ctx, open.ID, decimal.Zero, domain.HoldingPrices{RefCurrency: decimal.NewFromInt(1)})

	assert.NoError(t, err)
	assert.True(t, holding.Closed)
	mockHoldingRepo.AssertExpectations(t)
}

func TestBookedBalance(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	mockTransferRepo := new(MockTransferRepository)
	service := NewService(mockHoldingRepo, mockTransferRepo)

	holding := &domain.Holding{
		ID:           uuid.New(),
		StartBalance: decimal.NewFromInt(1000),
	}
	mockHoldingRepo.On("GetByID", ctx, holding.ID).Return(holding, nil)
	mockTransferRepo.On("SumByHolding", ctx, holding.ID).Return(decimal.RequireFromString("-250.5"), nil)

	balance, err := service.BookedBalance(ctx, holding.ID)

	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("749.5")), "got %s", balance)
}

func TestChain_CollectWalksToInception(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fundID := uuid.New()
	asset := domain.FiatAsset("USD")

	inception := &domain.Holding{
		ID:         uuid.New(),
		FundID:     fundID,
		Asset:      asset,
		Period:     domain.Period("202401"),
		EndBalance: decimal.NewFromInt(100),
		Closed:     true,
	}
	head := &domain.Holding{
		ID:                uuid.New(),
		FundID:            fundID,
		Asset:             asset,
		Period:            domain.Period("202402"),
		PreviousHoldingID: &inception.ID,
		StartBalance:      inception.EndBalance,
		LayerIdx:          1,
	}

	mockHoldingRepo.On("GetHead", ctx, fundID, asset).Return(head, nil)
	mockHoldingRepo.On("GetByID", ctx, inception.ID).Return(inception, nil)

	chain, err := service.Chain(fundID, asset).Collect(ctx)

	assert.NoError(t, err)
	assert.Len(t, chain, 2)
	assert.Equal(t, head.ID, chain[0].ID)
	assert.Equal(t, inception.ID, chain[1].ID)
}

func TestChain_MissingLinkBreaks(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fundID := uuid.New()
	asset := domain.FiatAsset("USD")
	missingID := uuid.New()
	head := &domain.Holding{
		ID:                uuid.New(),
		FundID:            fundID,
		Asset:             asset,
		Period:            domain.Period("202402"),
		PreviousHoldingID: &missingID,
		LayerIdx:          1,
	}

	mockHoldingRepo.On("GetHead", ctx, fundID, asset).Return(head, nil)
	mockHoldingRepo.On("GetByID", ctx, missingID).Return(nil, domain.ErrNotFound)

	_, err := service.Chain(fundID, asset).Collect(ctx)

	assert.ErrorIs(t, err, domain.ErrChainBroken)
}

func TestChain_InconsistentLinkBreaks(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fundID := uuid.New()
	asset := domain.FiatAsset("USD")

	// Predecessor closed at 100 but the head opened at 90.
	prev := &domain.Holding{
		ID:         uuid.New(),
		FundID:     fundID,
		Asset:      asset,
		Period:     domain.Period("202401"),
		EndBalance: decimal.NewFromInt(100),
		Closed:     true,
	}
	head := &domain.Holding{
		ID:                uuid.New(),
		FundID:            fundID,
		Asset:             asset,
		Period:            domain.Period("202402"),
		PreviousHoldingID: &prev.ID,
		StartBalance:      decimal.NewFromInt(90),
		LayerIdx:          1,
	}

	mockHoldingRepo.On("GetHead", ctx, fundID, asset).Return(head, nil)
	mockHoldingRepo.On("GetByID", ctx, prev.ID).Return(prev, nil)

	_, err := service.Chain(fundID, asset).Collect(ctx)

	assert.ErrorIs(t, err, domain.ErrChainBroken)
}

func TestChain_EmptyChain(t *testing.T) {
	ctx := context.Background()
	mockHoldingRepo := new(MockHoldingRepository)
	service := NewService(mockHoldingRepo, new(MockTransferRepository))

	fundID := uuid.New()
	asset := domain.FiatAsset("USD")
	mockHoldingRepo.On("GetHead", ctx, fundID, asset).Return(nil, domain.ErrNotFound)

	chain, err := service.Chain(fundID, asset).Collect(ctx)

	assert.NoError(t, err)
	assert.Empty(t, chain)
}
