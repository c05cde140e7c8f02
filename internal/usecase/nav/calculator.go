package nav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/rates"
)

// Calculator aggregates a fund's closed holdings, order fundings and
// subscription/redemption flows for one booking period into a single
// immutable NAV record.
type Calculator struct {
	FundRepo     domain.FundRepository
	HoldingRepo  domain.HoldingRepository
	TransferRepo domain.TransferRepository
	OrderRepo    domain.OrderRepository
	NavRepo      domain.NavRepository
	Resolver     *rates.Resolver
}

// NewCalculator creates a new Calculator instance.
func NewCalculator(
	fundRepo domain.FundRepository,
	holdingRepo domain.HoldingRepository,
	transferRepo domain.TransferRepository,
	orderRepo domain.OrderRepository,
	navRepo domain.NavRepository,
	resolver *rates.Resolver,
) *Calculator {
	return &Calculator{
		FundRepo:     fundRepo,
		HoldingRepo:  holdingRepo,
		TransferRepo: transferRepo,
		OrderRepo:    orderRepo,
		NavRepo:      navRepo,
		Resolver:     resolver,
	}
}

// ComputePeriodNAV computes and persists the NAV of a fund for a closed
// booking period.
// Logic:
//  1. Preconditions: no NAV yet for (fund, period), every holding of the
//     period closed, every funding's order terminal
//  2. totalValue = sum of closing holding values in the reporting
//     currency, rates as of the period end
//  3. Net subscription/redemption flow from the period's flow transfers
//  4. shareGross = (totalValue - inOutValue) / shares before flow
//  5. Performance fee gated by the fee strategy against the high-water
//     mark; admin fee accrued from the annual rate; both charged on the
//     shares invested during the period
//  6. shareNAV = shareGross - per-share fees; the HWM advances to
//     shareNAV when exceeded and never decreases
//
// Any failure aborts the whole computation; no partial Nav is written.
func (c *Calculator) ComputePeriodNAV(ctx context.Context, fundID uuid.UUID, period domain.Period) (*domain.Nav, error) {
	fund, err := c.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}

	if _, err := c.NavRepo.GetByFundPeriod(ctx, fundID, period); err == nil {
		return nil, fmt.Errorf("%w: fund %s period %s", domain.ErrAlreadyComputed, fundID, period)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	holdings, err := c.HoldingRepo.ListByFundPeriod(ctx, fundID, period)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("%w: fund %s has no holdings for period %s", domain.ErrPreconditionNotMet, fundID, period)
	}
	for _, h := range holdings {
		if !h.Closed {
			return nil, fmt.Errorf("%w: holding %s is still open", domain.ErrPreconditionNotMet, h.ID)
		}
	}

	fundings, err := c.OrderRepo.ListFundingsByFundPeriod(ctx, fundID, period)
	if err != nil {
		return nil, err
	}
	for _, f := range fundings {
		order, err := c.OrderRepo.GetByID(ctx, f.OrderID)
		if err != nil {
			return nil, err
		}
		if !order.State.Terminal() {
			return nil, fmt.Errorf("%w: order %s is %s", domain.ErrPreconditionNotMet, order.ID, order.State)
		}
	}

	valuedAt := period.End()
	totalValue := decimal.Zero
	for _, h := range holdings {
		value, err := c.Resolver.ValueIn(ctx, h.Asset, h.EndBalance, fund.ReportingCurrency, valuedAt)
		if err != nil {
			return nil, err
		}
		totalValue = totalValue.Add(value)
	}

	inOutValue, inOutShares, err := c.netFlow(ctx, fund, period, valuedAt)
	if err != nil {
		return nil, err
	}

	sharesBeforeFlow := fund.TotalShares.Sub(inOutShares)
	if sharesBeforeFlow.LessThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: negative share count before flow", domain.ErrValidation)
	}

	var shareGross decimal.Decimal
	if sharesBeforeFlow.IsZero() {
		// Inception period: all value entered through subscriptions, so
		// shares are still worth their issue price.
		shareGross = fund.InitialSharePrice
	} else {
		shareGross = totalValue.Sub(inOutValue).Div(sharesBeforeFlow)
	}

	hwm := fund.EffectiveHighWaterMark()
	baseline, err := c.baseline(ctx, fund, period)
	if err != nil {
		return nil, err
	}

	perfPerShare, err := fund.Fees.Performance.PerShareFee(shareGross, baseline, hwm)
	if err != nil {
		return nil, err
	}
	adminPerShare := fund.Fees.Admin.PerShareFee(shareGross, period)

	shareNAV := shareGross.Sub(perfPerShare).Sub(adminPerShare)
	nextHWM := hwm
	if shareNAV.GreaterThan(nextHWM) {
		nextHWM = shareNAV
	}

	nav := &domain.Nav{
		ID:             uuid.New(),
		FundID:         fund.ID,
		Period:         period,
		TotalValue:     totalValue,
		TotalShares:    fund.TotalShares,
		ShareGross:     shareGross,
		ShareNAV:       shareNAV,
		HighWaterMark:  hwm,
		NextHWM:        nextHWM,
		PerformanceFee: perfPerShare.Mul(sharesBeforeFlow),
		AdminFee:       adminPerShare.Mul(sharesBeforeFlow),
		InOutShares:    inOutShares,
		InOutValue:     inOutValue,
		RateTimestamp:  valuedAt,
		CreatedAt:      time.Now().UTC(),
	}
	if err := nav.Validate(); err != nil {
		return nil, err
	}

	if err := c.NavRepo.Create(ctx, nav); err != nil {
		return nil, err
	}
	return nav, nil
}

// netFlow sums the period's subscription/redemption transfers, valued in
// the fund's reporting currency.
func (c *Calculator) netFlow(ctx context.Context, fund *domain.Fund, period domain.Period, valuedAt time.Time) (value, shares decimal.Decimal, err error) {
	flows, err := c.TransferRepo.ListFlows(ctx, fund.ID, period)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	for _, flow := range flows {
		holding, err := c.HoldingRepo.GetByID(ctx, flow.HoldingID)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		converted, err := c.Resolver.ValueIn(ctx, holding.Asset, flow.Amount, fund.ReportingCurrency, valuedAt)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		value = value.Add(converted)
		shares = shares.Add(flow.Shares)
	}
	return value, shares, nil
}

// baseline returns the share value gains are measured from for flat-rate
// fee strategies: the previous period's share NAV, or the issue price
// when no NAV exists yet.
func (c *Calculator) baseline(ctx context.Context, fund *domain.Fund, period domain.Period) (decimal.Decimal, error) {
	prev, err := c.NavRepo.GetByFundPeriod(ctx, fund.ID, period.Previous())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fund.InitialSharePrice, nil
		}
		return decimal.Zero, err
	}
	return prev.ShareNAV, nil
}
