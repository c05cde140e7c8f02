package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fund represents an investable pool in the domain layer.
// TotalShares and HighWaterMark evolve only through subscription,
// redemption and period NAV computation; HWM is monotonic non-decreasing
// across periods.
type Fund struct {
	ID                uuid.UUID
	Name              string
	ReportingCurrency string     // ISO 4217 code all NAVs are expressed in
	PrimaryCryptoID   *uuid.UUID // the fund's primary crypto asset, if any
	Fees              FeeSchedule
	InitialSharePrice decimal.Decimal // issue price, seeds the HWM at inception
	TotalShares       decimal.Decimal
	HighWaterMark     decimal.Decimal
	InceptionPeriod   Period
}

// Validate ensures the fund adheres to domain rules.
func (f *Fund) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: fund name cannot be empty", ErrValidation)
	}
	if f.ReportingCurrency == "" {
		return fmt.Errorf("%w: fund reporting currency cannot be empty", ErrValidation)
	}
	if f.TotalShares.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: fund total shares cannot be negative", ErrValidation)
	}
	if f.InitialSharePrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: fund initial share price must be positive", ErrValidation)
	}
	if err := f.InceptionPeriod.Validate(); err != nil {
		return err
	}
	return f.Fees.Validate()
}

// EffectiveHighWaterMark returns the HWM to gate performance fees with:
// the recorded mark, or the issue price before any NAV exists.
func (f *Fund) EffectiveHighWaterMark() decimal.Decimal {
	if f.HighWaterMark.IsZero() {
		return f.InitialSharePrice
	}
	return f.HighWaterMark
}
