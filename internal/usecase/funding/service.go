package funding

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Service splits pooled exchange orders across their co-investing funds
// and reconciles exchange fills into the per-fund funding records.
type Service struct {
	OrderRepo domain.OrderRepository
	// Epsilon is the tolerance on the 100% allocation sum. Default zero:
	// percentages must add up exactly.
	Epsilon decimal.Decimal
}

// NewService creates a new funding Service instance.
func NewService(orderRepo domain.OrderRepository, epsilon decimal.Decimal) *Service {
	return &Service{OrderRepo: orderRepo, Epsilon: epsilon}
}

// AllocateOrder splits an order across funds proportional to each fund's
// committed percentage, tagged to the order's booking period.
// Logic:
//  1. Percentages must sum to 100% within Epsilon
//  2. An order already allocated for its booking period cannot be
//     allocated again
//  3. Fundings start with zero executed amount/total; fills accrue into
//     them through ReconcileFill
func (s *Service) AllocateOrder(ctx context.Context, order *domain.Order, fundCommitments map[uuid.UUID]decimal.Decimal) ([]*domain.OrderFunding, error) {
	if len(fundCommitments) == 0 {
		return nil, fmt.Errorf("%w: no fund commitments", domain.ErrAllocation)
	}

	sum := decimal.Zero
	for _, pct := range fundCommitments {
		if pct.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: commitment percentages must be positive", domain.ErrAllocation)
		}
		sum = sum.Add(pct)
	}
	if sum.Sub(hundred).Abs().GreaterThan(s.Epsilon) {
		return nil, fmt.Errorf("%w: commitments sum to %s%%, want 100%%", domain.ErrAllocation, sum)
	}

	existing, err := s.OrderRepo.ListFundings(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if f.Period == order.Period {
			return nil, fmt.Errorf("%w: order %s already allocated for period %s", domain.ErrAllocation, order.ID, order.Period)
		}
	}

	// Stable fund order so tests and re-runs produce identical records.
	fundIDs := make([]uuid.UUID, 0, len(fundCommitments))
	for fundID := range fundCommitments {
		fundIDs = append(fundIDs, fundID)
	}
	sort.Slice(fundIDs, func(i, j int) bool {
		return fundIDs[i].String() < fundIDs[j].String()
	})

	fundings := make([]*domain.OrderFunding, 0, len(fundIDs))
	for _, fundID := range fundIDs {
		f := &domain.OrderFunding{
			ID:         uuid.New(),
			OrderID:    order.ID,
			FundID:     fundID,
			Period:     order.Period,
			Percentage: fundCommitments[fundID],
			Amount:     decimal.Zero,
			Total:      decimal.Zero,
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		fundings = append(fundings, f)
	}

	if err := s.OrderRepo.CreateFundings(ctx, fundings); err != nil {
		return nil, err
	}
	return fundings, nil
}

// ReconcileFill apportions a fill across the order's fundings pro-rata
// to their original percentages and advances the order state machine.
// Logic:
//  1. A terminal order accepts no further fills
//  2. The fill cannot exceed the order's open amount
//  3. Rounding residue goes to the largest commitment so the apportioned
//     quantities always sum exactly to the fill
func (s *Service) ReconcileFill(ctx context.Context, orderID uuid.UUID, trade *domain.Trade) ([]*domain.OrderFunding, error) {
	order, err := s.OrderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State.Terminal() {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrTerminalOrder, order.ID, order.State)
	}

	if trade.OrderID != uuid.Nil && trade.OrderID != order.ID {
		return nil, fmt.Errorf("%w: trade %s belongs to order %s, not %s", domain.ErrValidation, trade.ID, trade.OrderID, order.ID)
	}
	trade.OrderID = order.ID
	if err := trade.Validate(); err != nil {
		return nil, err
	}
	if trade.Executed.GreaterThan(order.OpenAmount()) {
		return nil, fmt.Errorf("%w: fill of %s exceeds open amount %s", domain.ErrValidation, trade.Executed, order.OpenAmount())
	}

	fundings, err := s.OrderRepo.ListFundings(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(fundings) == 0 {
		return nil, fmt.Errorf("%w: order %s has no fundings to reconcile into", domain.ErrAllocation, order.ID)
	}

	apportion(fundings, trade.Executed, trade.Total)

	if trade.Maker {
		order.MakerFilled = order.MakerFilled.Add(trade.Executed)
	} else {
		order.TakerFilled = order.TakerFilled.Add(trade.Executed)
	}

	next := domain.OrderStatePartiallyFilled
	if order.OpenAmount().IsZero() {
		next = domain.OrderStateFilled
	}
	if !order.State.CanTransition(next) {
		return nil, fmt.Errorf("%w: cannot move order %s from %s to %s", domain.ErrValidation, order.ID, order.State, next)
	}
	order.State = next

	if err := s.OrderRepo.RecordFill(ctx, order, trade, fundings); err != nil {
		return nil, err
	}
	return fundings, nil
}

// Cancel marks an order cancelled; the unexecuted remainder of a partial
// fill is discarded with it.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, domain.OrderStateCancelled)
}

// Reject marks a never-filled order rejected by the exchange.
func (s *Service) Reject(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, domain.OrderStateRejected)
}

func (s *Service) transition(ctx context.Context, orderID uuid.UUID, to domain.OrderState) error {
	order, err := s.OrderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State.Terminal() {
		return fmt.Errorf("%w: order %s is %s", domain.ErrTerminalOrder, order.ID, order.State)
	}
	if !order.State.CanTransition(to) {
		return fmt.Errorf("%w: cannot move order %s from %s to %s", domain.ErrValidation, order.ID, order.State, to)
	}
	return s.OrderRepo.UpdateState(ctx, order.ID, to)
}

// apportion distributes an executed quantity and quote total across the
// fundings by percentage. The rounding residue is assigned to the
// largest funding so the split loses nothing.
func apportion(fundings []*domain.OrderFunding, executed, total decimal.Decimal) {
	largest := 0
	allocatedQty := decimal.Zero
	allocatedTotal := decimal.Zero

	for i, f := range fundings {
		if f.Percentage.GreaterThan(fundings[largest].Percentage) {
			largest = i
		}
	}

	for i, f := range fundings {
		if i == largest {
			continue
		}
		qty := executed.Mul(f.Percentage).Div(hundred)
		tot := total.Mul(f.Percentage).Div(hundred)
		f.Amount = f.Amount.Add(qty)
		f.Total = f.Total.Add(tot)
		allocatedQty = allocatedQty.Add(qty)
		allocatedTotal = allocatedTotal.Add(tot)
	}

	rest := fundings[largest]
	rest.Amount = rest.Amount.Add(executed.Sub(allocatedQty))
	rest.Total = rest.Total.Add(total.Sub(allocatedTotal))
}
