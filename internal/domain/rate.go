package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyRate is a point-in-time valuation of a fiat currency in the
// reference currency and the reference crypto unit. Immutable once
// recorded.
type CurrencyRate struct {
	ID           uuid.UUID
	CurrencyCode string
	RefCurrency  decimal.Decimal // value of 1 unit in the reference currency
	RefCrypto    decimal.Decimal // value of 1 unit in the reference crypto
	Timestamp    time.Time
	Source       string
}

// Validate ensures the rate adheres to domain rules.
func (r *CurrencyRate) Validate() error {
	if r.CurrencyCode == "" {
		return fmt.Errorf("%w: currency rate must carry a currency code", ErrValidation)
	}
	if r.RefCurrency.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: currency rate must be positive", ErrValidation)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: currency rate must carry a timestamp", ErrValidation)
	}
	return nil
}

// Listing is a point-in-time valuation of a crypto asset. Immutable once
// recorded.
type Listing struct {
	ID            uuid.UUID
	CryptoAssetID uuid.UUID
	Symbol        string
	RefCurrency   decimal.Decimal
	RefCrypto     decimal.Decimal
	Timestamp     time.Time
	Source        string
}

// Validate ensures the listing adheres to domain rules.
func (l *Listing) Validate() error {
	if l.CryptoAssetID == uuid.Nil {
		return fmt.Errorf("%w: listing must reference a crypto asset", ErrValidation)
	}
	if l.RefCurrency.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: listing price cannot be negative", ErrValidation)
	}
	if l.Timestamp.IsZero() {
		return fmt.Errorf("%w: listing must carry a timestamp", ErrValidation)
	}
	return nil
}

// RatePoint is a resolved valuation of an asset at or before a requested
// time. Selection always picks the latest entry at-or-before, never a
// forward extrapolation.
type RatePoint struct {
	Asset       AssetRef
	RefCurrency decimal.Decimal
	RefCrypto   decimal.Decimal
	Timestamp   time.Time
	Source      string
}
