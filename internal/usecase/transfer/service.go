package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// BalancePolicy configures which asset classes may carry a negative
// holding balance. Crypto holdings never may; fiat holdings may when
// settlement lag or margin makes a temporary overdraft legitimate.
type BalancePolicy struct {
	AllowNegativeFiat bool
}

// RecordTransferInput represents the input for recording a movement
// between two holdings.
type RecordTransferInput struct {
	FromHoldingID uuid.UUID
	ToHoldingID   uuid.UUID
	Amount        decimal.Decimal // positive magnitude
	Fee           decimal.Decimal
	FeeHoldingID  *uuid.UUID // required when Fee is non-zero
	Reference     string     // external transaction id
}

// Service books value movements against holdings. Every movement is a
// debit/credit pair plus an optional fee leg, written atomically, which
// keeps fund-to-fund transfers self-balancing without a separate
// trial-balance step.
type Service struct {
	HoldingRepo  domain.HoldingRepository
	TransferRepo domain.TransferRepository
	FundRepo     domain.FundRepository
	Policy       BalancePolicy
}

// NewService creates a new transfer Service instance.
func NewService(
	holdingRepo domain.HoldingRepository,
	transferRepo domain.TransferRepository,
	fundRepo domain.FundRepository,
	policy BalancePolicy,
) *Service {
	return &Service{
		HoldingRepo:  holdingRepo,
		TransferRepo: transferRepo,
		FundRepo:     fundRepo,
		Policy:       policy,
	}
}

// RecordTransfer books a debit on the source holding, a credit of the
// same magnitude on the target holding (the opposite transfer), and a
// fee debit on the fee holding. All legs succeed or none are applied.
// Returns the debit and credit transfers.
func (s *Service) RecordTransfer(ctx context.Context, input RecordTransferInput) (*domain.Transfer, *domain.Transfer, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: transfer amount must be positive", domain.ErrValidation)
	}
	if input.Fee.LessThan(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: transfer fee cannot be negative", domain.ErrValidation)
	}
	if input.Fee.GreaterThan(decimal.Zero) && input.FeeHoldingID == nil {
		return nil, nil, fmt.Errorf("%w: a fee requires a fee holding", domain.ErrValidation)
	}

	from, err := s.HoldingRepo.GetByID(ctx, input.FromHoldingID)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.HoldingRepo.GetByID(ctx, input.ToHoldingID)
	if err != nil {
		return nil, nil, err
	}

	if from.Closed {
		return nil, nil, fmt.Errorf("%w: source holding %s", domain.ErrPeriodClosed, from.ID)
	}
	if to.Closed {
		return nil, nil, fmt.Errorf("%w: target holding %s", domain.ErrPeriodClosed, to.ID)
	}
	if !from.Asset.Equal(to.Asset) {
		return nil, nil, fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, from.Asset.Key(), to.Asset.Key())
	}

	var feeHolding *domain.Holding
	if input.FeeHoldingID != nil {
		feeHolding, err = s.HoldingRepo.GetByID(ctx, *input.FeeHoldingID)
		if err != nil {
			return nil, nil, err
		}
		if feeHolding.Closed {
			return nil, nil, fmt.Errorf("%w: fee holding %s", domain.ErrPeriodClosed, feeHolding.ID)
		}
	}

	// The fee leg is a debit like any other: a fee holding distinct from
	// the source is balance-checked on its own.
	debitTotal := input.Amount
	if feeHolding != nil && feeHolding.ID == from.ID {
		debitTotal = debitTotal.Add(input.Fee)
	}
	if err := s.checkBalance(ctx, from, debitTotal); err != nil {
		return nil, nil, err
	}
	if feeHolding != nil && feeHolding.ID != from.ID && input.Fee.GreaterThan(decimal.Zero) {
		if err := s.checkBalance(ctx, feeHolding, input.Fee); err != nil {
			return nil, nil, err
		}
	}

	debit := &domain.Transfer{
		ID:           uuid.New(),
		HoldingID:    from.ID,
		FeeHoldingID: input.FeeHoldingID,
		Amount:       input.Amount.Neg(),
		Fee:          input.Fee,
		Direction:    domain.TransferDebit,
		Kind:         domain.TransferMovement,
		Period:       from.Period,
		TxReference:  input.Reference,
	}
	credit := &domain.Transfer{
		ID:                 uuid.New(),
		HoldingID:          to.ID,
		OppositeTransferID: &debit.ID,
		Amount:             input.Amount,
		Direction:          domain.TransferCredit,
		Kind:               domain.TransferMovement,
		Period:             to.Period,
		TxReference:        input.Reference,
	}
	debit.OppositeTransferID = &credit.ID

	group := []*domain.Transfer{debit, credit}
	if feeHolding != nil && input.Fee.GreaterThan(decimal.Zero) {
		group = append(group, &domain.Transfer{
			ID:          uuid.New(),
			HoldingID:   feeHolding.ID,
			Amount:      input.Fee.Neg(),
			Direction:   domain.TransferDebit,
			Kind:        domain.TransferFee,
			Period:      feeHolding.Period,
			TxReference: input.Reference,
		})
	}

	for _, tr := range group {
		if err := tr.Validate(); err != nil {
			return nil, nil, err
		}
	}

	if err := s.TransferRepo.CreateGroup(ctx, group); err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// RecordSubscription books a share issuance inflow on a holding and
// raises the fund's share count.
func (s *Service) RecordSubscription(ctx context.Context, holdingID uuid.UUID, amount, shares decimal.Decimal, reference string) (*domain.Transfer, error) {
	return s.recordFlow(ctx, holdingID, amount, shares, domain.TransferSubscription, reference)
}

// RecordRedemption books a share redemption outflow on a holding and
// lowers the fund's share count.
func (s *Service) RecordRedemption(ctx context.Context, holdingID uuid.UUID, amount, shares decimal.Decimal, reference string) (*domain.Transfer, error) {
	return s.recordFlow(ctx, holdingID, amount, shares, domain.TransferRedemption, reference)
}

func (s *Service) recordFlow(ctx context.Context, holdingID uuid.UUID, amount, shares decimal.Decimal, kind domain.TransferKind, reference string) (*domain.Transfer, error) {
	if amount.LessThanOrEqual(decimal.Zero) || shares.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: flow amount and shares must be positive", domain.ErrValidation)
	}

	holding, err := s.HoldingRepo.GetByID(ctx, holdingID)
	if err != nil {
		return nil, err
	}
	if holding.Closed {
		return nil, fmt.Errorf("%w: holding %s", domain.ErrPeriodClosed, holding.ID)
	}

	fund, err := s.FundRepo.GetByID(ctx, holding.FundID)
	if err != nil {
		return nil, err
	}

	flow := &domain.Transfer{
		ID:          uuid.New(),
		HoldingID:   holding.ID,
		Kind:        kind,
		Period:      holding.Period,
		TxReference: reference,
	}

	newShares := fund.TotalShares
	switch kind {
	case domain.TransferSubscription:
		flow.Amount = amount
		flow.Direction = domain.TransferCredit
		flow.Shares = shares
		newShares = newShares.Add(shares)
	case domain.TransferRedemption:
		flow.Amount = amount.Neg()
		flow.Direction = domain.TransferDebit
		flow.Shares = shares.Neg()
		newShares = newShares.Sub(shares)
		if newShares.LessThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: redemption of %s shares exceeds fund total %s", domain.ErrValidation, shares, fund.TotalShares)
		}
		if err := s.checkBalance(ctx, holding, amount); err != nil {
			return nil, err
		}
	}

	if err := flow.Validate(); err != nil {
		return nil, err
	}
	if err := s.TransferRepo.CreateFlow(ctx, flow, fund.ID, newShares); err != nil {
		return nil, err
	}
	return flow, nil
}

// checkBalance rejects a debit that would drive a non-negative-balance
// asset below zero.
func (s *Service) checkBalance(ctx context.Context, holding *domain.Holding, debit decimal.Decimal) error {
	if holding.Asset.IsFiat() && s.Policy.AllowNegativeFiat {
		return nil
	}
	booked, err := s.TransferRepo.SumByHolding(ctx, holding.ID)
	if err != nil {
		return err
	}
	current := holding.StartBalance.Add(booked)
	if current.Sub(debit).LessThan(decimal.Zero) {
		return fmt.Errorf("%w: holding %s has %s, debit of %s requested", domain.ErrInsufficientBalance, holding.ID, current, debit)
	}
	return nil
}
