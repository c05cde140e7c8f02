package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeStrategyKind tags the performance-fee computation variant.
type FeeStrategyKind string

const (
	// FeeStrategyFlat charges the rate on any gain since the previous
	// period, without a high-water-mark gate.
	FeeStrategyFlat FeeStrategyKind = "FLAT"
	// FeeStrategyTiered charges marginal rates per gain tier above the
	// high-water mark.
	FeeStrategyTiered FeeStrategyKind = "TIERED"
	// FeeStrategyHighWaterMark charges the rate only on gains above the
	// fund's high-water mark.
	FeeStrategyHighWaterMark FeeStrategyKind = "HIGH_WATER_MARK"
)

// FeeTier is one marginal band of a tiered performance fee.
// The Rate applies to the slice of per-share gain above GainAbove, up to
// the next tier's threshold.
type FeeTier struct {
	GainAbove decimal.Decimal
	Rate      decimal.Decimal
}

// FeeStrategy is the tagged variant of performance-fee computations.
// Exactly one shape is active per Kind: Rate for FLAT and
// HIGH_WATER_MARK, Tiers for TIERED.
type FeeStrategy struct {
	Kind  FeeStrategyKind
	Rate  decimal.Decimal
	Tiers []FeeTier
}

// Validate ensures the strategy adheres to domain rules.
func (f FeeStrategy) Validate() error {
	switch f.Kind {
	case FeeStrategyFlat, FeeStrategyHighWaterMark:
		if f.Rate.LessThan(decimal.Zero) || f.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: performance fee rate must be between 0 and 1", ErrValidation)
		}
	case FeeStrategyTiered:
		if len(f.Tiers) == 0 {
			return fmt.Errorf("%w: tiered fee strategy must have at least one tier", ErrValidation)
		}
		prev := decimal.NewFromInt(-1)
		for _, tier := range f.Tiers {
			if tier.GainAbove.LessThanOrEqual(prev) {
				return fmt.Errorf("%w: fee tiers must have strictly increasing thresholds", ErrValidation)
			}
			if tier.Rate.LessThan(decimal.Zero) || tier.Rate.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("%w: fee tier rate must be between 0 and 1", ErrValidation)
			}
			prev = tier.GainAbove
		}
	default:
		return fmt.Errorf("%w: unknown fee strategy kind %q", ErrValidation, f.Kind)
	}
	return nil
}

// PerShareFee returns the performance fee charged per share for a period
// closing at shareGross. baseline is the previous period's share NAV (or
// the issue price at inception); highWaterMark is the fund's current HWM.
func (f FeeStrategy) PerShareFee(shareGross, baseline, highWaterMark decimal.Decimal) (decimal.Decimal, error) {
	switch f.Kind {
	case FeeStrategyFlat:
		gain := shareGross.Sub(baseline)
		if gain.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		return gain.Mul(f.Rate), nil

	case FeeStrategyHighWaterMark:
		gain := shareGross.Sub(highWaterMark)
		if gain.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		return gain.Mul(f.Rate), nil

	case FeeStrategyTiered:
		gain := shareGross.Sub(highWaterMark)
		if gain.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		fee := decimal.Zero
		for i, tier := range f.Tiers {
			if gain.LessThanOrEqual(tier.GainAbove) {
				break
			}
			upper := gain
			if i+1 < len(f.Tiers) && f.Tiers[i+1].GainAbove.LessThan(gain) {
				upper = f.Tiers[i+1].GainAbove
			}
			fee = fee.Add(upper.Sub(tier.GainAbove).Mul(tier.Rate))
		}
		return fee, nil

	default:
		return decimal.Zero, fmt.Errorf("%w: unknown fee strategy kind %q", ErrValidation, f.Kind)
	}
}

// AdminFeeFrequency selects how the administration fee accrues.
type AdminFeeFrequency string

const (
	// AdminFeeDaily pro-rates the annual rate by actual days in the
	// booking period over 365.
	AdminFeeDaily AdminFeeFrequency = "DAILY"
	// AdminFeeMonthly charges one twelfth of the annual rate per period.
	AdminFeeMonthly AdminFeeFrequency = "MONTHLY"
)

var daysPerYear = decimal.NewFromInt(365)

// AdminFeePolicy accrues the administration fee from an annual rate,
// regardless of gain or loss.
type AdminFeePolicy struct {
	AnnualRate decimal.Decimal
	Frequency  AdminFeeFrequency
}

// Validate ensures the policy adheres to domain rules.
func (a AdminFeePolicy) Validate() error {
	if a.AnnualRate.LessThan(decimal.Zero) || a.AnnualRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: admin fee annual rate must be between 0 and 1", ErrValidation)
	}
	if a.Frequency != AdminFeeDaily && a.Frequency != AdminFeeMonthly {
		return fmt.Errorf("%w: admin fee frequency must be DAILY or MONTHLY", ErrValidation)
	}
	return nil
}

// PerShareFee returns the administration fee accrued per share over the
// given booking period, charged on the gross share value.
func (a AdminFeePolicy) PerShareFee(shareGross decimal.Decimal, period Period) decimal.Decimal {
	switch a.Frequency {
	case AdminFeeMonthly:
		return shareGross.Mul(a.AnnualRate).Div(decimal.NewFromInt(12))
	default:
		days := decimal.NewFromInt(int64(period.Days()))
		return shareGross.Mul(a.AnnualRate).Mul(days).Div(daysPerYear)
	}
}

// FeeSchedule is a fund's full fee configuration.
type FeeSchedule struct {
	Performance FeeStrategy
	Admin       AdminFeePolicy
}

// Validate ensures the schedule adheres to domain rules.
func (s FeeSchedule) Validate() error {
	if err := s.Performance.Validate(); err != nil {
		return err
	}
	return s.Admin.Validate()
}
