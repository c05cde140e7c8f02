package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// Service maintains the per-(fund, asset) chains of period-bounded
// holdings. Opening a period copies the predecessor's closing state;
// closing is a one-shot, idempotent finalization.
type Service struct {
	HoldingRepo  domain.HoldingRepository
	TransferRepo domain.TransferRepository
}

// NewService creates a new ledger Service instance.
func NewService(holdingRepo domain.HoldingRepository, transferRepo domain.TransferRepository) *Service {
	return &Service{HoldingRepo: holdingRepo, TransferRepo: transferRepo}
}

// OpenHolding creates the holding of (fund, asset) for the given period.
// Logic:
//  1. Reject if a holding for (fund, asset, period) already exists
//  2. Locate the chain head; outside the fund's inception period a
//     missing or still-open predecessor breaks the chain
//  3. The new holding opens with the predecessor's closing balance and
//     anchor prices
func (s *Service) OpenHolding(ctx context.Context, fund *domain.Fund, asset domain.AssetRef, period domain.Period) (*domain.Holding, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.HoldingRepo.GetByFundAssetPeriod(ctx, fund.ID, asset, period); err == nil {
		return nil, fmt.Errorf("%w: holding already open for %s period %s", domain.ErrChainBroken, asset.Key(), period)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	head, err := s.HoldingRepo.GetHead(ctx, fund.ID, asset)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// No chain yet: only the fund's inception period may start one.
		if period != fund.InceptionPeriod {
			return nil, fmt.Errorf("%w: no prior holding for %s and %s is not the inception period", domain.ErrChainBroken, asset.Key(), period)
		}
		return s.createInception(ctx, fund, asset, period)
	}

	if !head.Closed {
		return nil, fmt.Errorf("%w: predecessor holding %s is still open", domain.ErrChainBroken, head.ID)
	}
	if head.Period.Next() != period {
		return nil, fmt.Errorf("%w: period %s does not follow %s", domain.ErrChainBroken, period, head.Period)
	}

	holding := &domain.Holding{
		ID:                uuid.New(),
		FundID:            fund.ID,
		Asset:             asset,
		Period:            period,
		PreviousHoldingID: &head.ID,
		StartAt:           period.Start(),
		EndAt:             period.End(),
		StartBalance:      head.EndBalance,
		EndBalance:        head.EndBalance,
		StartPrices:       head.EndPrices,
		EndPrices:         head.EndPrices,
		LayerIdx:          head.LayerIdx + 1,
	}
	if err := holding.Validate(); err != nil {
		return nil, err
	}
	if err := s.HoldingRepo.Create(ctx, holding); err != nil {
		return nil, err
	}
	return holding, nil
}

func (s *Service) createInception(ctx context.Context, fund *domain.Fund, asset domain.AssetRef, period domain.Period) (*domain.Holding, error) {
	holding := &domain.Holding{
		ID:       uuid.New(),
		FundID:   fund.ID,
		Asset:    asset,
		Period:   period,
		StartAt:  period.Start(),
		EndAt:    period.End(),
		LayerIdx: 0,
	}
	if err := holding.Validate(); err != nil {
		return nil, err
	}
	if err := s.HoldingRepo.Create(ctx, holding); err != nil {
		return nil, err
	}
	return holding, nil
}

// CloseHolding finalizes a holding with its end balance and anchor
// prices. Idempotent: re-closing with identical values returns the
// closed holding; re-closing with different values fails. A zero-balance
// holding closes normally.
func (s *Service) CloseHolding(ctx context.Context, holdingID uuid.UUID, endBalance decimal.Decimal, endPrices domain.HoldingPrices) (*domain.Holding, error) {
	holding, err := s.HoldingRepo.GetByID(ctx, holdingID)
	if err != nil {
		return nil, err
	}

	if holding.Closed {
		if holding.EndBalance.Equal(endBalance) && samePrices(holding.EndPrices, endPrices) {
			return holding, nil
		}
		return nil, fmt.Errorf("%w: holding %s already closed with different values", domain.ErrImmutableRecord, holding.ID)
	}

	holding.EndBalance = endBalance
	holding.EndPrices = endPrices
	holding.EndAt = holding.Period.End()
	holding.Closed = true

	if err := s.HoldingRepo.Close(ctx, holding); err != nil {
		return nil, err
	}
	return holding, nil
}

func samePrices(a, b domain.HoldingPrices) bool {
	return a.RefCurrency.Equal(b.RefCurrency) &&
		a.RefCrypto.Equal(b.RefCrypto) &&
		a.FundShare.Equal(b.FundShare)
}

// BookedBalance returns a holding's balance as currently booked: the
// opening balance plus the signed sum of its transfers.
func (s *Service) BookedBalance(ctx context.Context, holdingID uuid.UUID) (decimal.Decimal, error) {
	holding, err := s.HoldingRepo.GetByID(ctx, holdingID)
	if err != nil {
		return decimal.Zero, err
	}
	sum, err := s.TransferRepo.SumByHolding(ctx, holdingID)
	if err != nil {
		return decimal.Zero, err
	}
	return holding.StartBalance.Add(sum), nil
}

// Chain returns a lazy, restartable iterator over the previous-holding
// links of (fund, asset), newest first.
func (s *Service) Chain(fundID uuid.UUID, asset domain.AssetRef) *ChainIterator {
	return &ChainIterator{repo: s.HoldingRepo, fundID: fundID, asset: asset}
}

// ChainIterator walks a holding chain from its head back to inception.
// The walk is bounded: visiting more holdings than the chain length + 1
// means a link cycle and fails with ErrChainBroken.
type ChainIterator struct {
	repo    domain.HoldingRepository
	fundID  uuid.UUID
	asset   domain.AssetRef
	current *domain.Holding
	started bool
	steps   int
	bound   int
}

// Next returns the next holding in the chain, or nil once the inception
// holding has been yielded. A missing link or a cycle fails with
// ErrChainBroken.
func (it *ChainIterator) Next(ctx context.Context) (*domain.Holding, error) {
	if !it.started {
		head, err := it.repo.GetHead(ctx, it.fundID, it.asset)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		it.started = true
		it.current = head
		it.steps = 1
		it.bound = head.LayerIdx + 2
		return head, nil
	}

	if it.current == nil || it.current.PreviousHoldingID == nil {
		it.current = nil
		return nil, nil
	}

	it.steps++
	if it.steps > it.bound {
		return nil, fmt.Errorf("%w: chain for %s exceeds its recorded length, link cycle suspected", domain.ErrChainBroken, it.asset.Key())
	}

	prev, err := it.repo.GetByID(ctx, *it.current.PreviousHoldingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: holding %s references missing predecessor %s", domain.ErrChainBroken, it.current.ID, it.current.PreviousHoldingID)
		}
		return nil, err
	}
	if !it.current.ChainsFrom(prev) {
		return nil, fmt.Errorf("%w: holding %s does not continue from %s", domain.ErrChainBroken, it.current.ID, prev.ID)
	}

	it.current = prev
	return prev, nil
}

// Reset restarts the iterator from the chain head.
func (it *ChainIterator) Reset() {
	it.started = false
	it.current = nil
	it.steps = 0
}

// Collect drains the iterator and returns the whole chain, newest first.
func (it *ChainIterator) Collect(ctx context.Context) ([]*domain.Holding, error) {
	it.Reset()
	var chain []*domain.Holding
	for {
		h, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return chain, nil
		}
		chain = append(chain, h)
	}
}