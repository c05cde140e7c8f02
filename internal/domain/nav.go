package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Nav is a fund's period valuation snapshot, created exactly once per
// (fund, period) after every holding and funding for that period is
// finalized. It is never recomputed in place; a correction creates a new
// Nav referencing the corrected period.
type Nav struct {
	ID             uuid.UUID
	FundID         uuid.UUID
	Period         Period
	TotalValue     decimal.Decimal // closing value of all holdings, reporting currency
	TotalShares    decimal.Decimal
	ShareGross     decimal.Decimal // per-share value before fees
	ShareNAV       decimal.Decimal // per-share value after fees
	HighWaterMark  decimal.Decimal // mark used to gate the performance fee
	NextHWM        decimal.Decimal // mark carried into the following period
	PerformanceFee decimal.Decimal // total performance fee, reporting currency
	AdminFee       decimal.Decimal // total administration fee, reporting currency
	InOutShares    decimal.Decimal // net subscription/redemption shares
	InOutValue     decimal.Decimal // net subscription/redemption value
	RateTimestamp  time.Time       // timestamp of the rate snapshot used
	CreatedAt      time.Time
}

// Validate ensures the nav record adheres to domain rules.
func (n *Nav) Validate() error {
	if n.FundID == uuid.Nil {
		return fmt.Errorf("%w: nav must reference a fund", ErrValidation)
	}
	if err := n.Period.Validate(); err != nil {
		return err
	}
	if n.TotalShares.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: nav total shares cannot be negative", ErrValidation)
	}
	if n.NextHWM.LessThan(n.HighWaterMark) {
		return fmt.Errorf("%w: high-water mark can never decrease", ErrValidation)
	}
	if n.PerformanceFee.LessThan(decimal.Zero) || n.AdminFee.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: fees cannot be negative", ErrValidation)
	}
	return nil
}
