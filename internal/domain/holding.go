package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HoldingPrices carries the three anchor prices recorded on a holding
// boundary: the asset's value in the reporting currency, its value in
// the reference crypto unit, and its percentage of the whole fund.
// Anchoring them at close time means later NAV corrections never need to
// re-resolve historical rates.
type HoldingPrices struct {
	RefCurrency decimal.Decimal
	RefCrypto   decimal.Decimal
	FundShare   decimal.Decimal // percentage of fund value, 0-100
}

// Holding is a fund's balance of one asset over one booking period.
// Holdings form an append-only chain per (fund, asset): links are id
// references resolved by lookup, never live references, and the start
// state of a holding equals the end state of its predecessor.
type Holding struct {
	ID                uuid.UUID
	FundID            uuid.UUID
	Asset             AssetRef
	Period            Period
	PreviousHoldingID *uuid.UUID // nil only for the inception holding
	StartAt           time.Time
	EndAt             time.Time
	StartBalance      decimal.Decimal
	EndBalance        decimal.Decimal
	StartPrices       HoldingPrices
	EndPrices         HoldingPrices
	LayerIdx          int // position in the chain, 0 at inception
	Closed            bool
}

// Validate ensures the holding adheres to domain rules.
func (h *Holding) Validate() error {
	if err := h.Asset.Validate(); err != nil {
		return err
	}
	if err := h.Period.Validate(); err != nil {
		return err
	}
	if h.FundID == uuid.Nil {
		return fmt.Errorf("%w: holding must reference a fund", ErrValidation)
	}
	if h.LayerIdx < 0 {
		return fmt.Errorf("%w: holding layer index cannot be negative", ErrValidation)
	}
	if h.LayerIdx > 0 && h.PreviousHoldingID == nil {
		return fmt.Errorf("%w: non-inception holding must reference its predecessor", ErrValidation)
	}
	return nil
}

// ChainsFrom reports whether h is a well-formed successor of prev:
// linked by id, contiguous in period, and opening with prev's closing
// balance and prices.
func (h *Holding) ChainsFrom(prev *Holding) bool {
	if h.PreviousHoldingID == nil || *h.PreviousHoldingID != prev.ID {
		return false
	}
	if !h.Asset.Equal(prev.Asset) || h.FundID != prev.FundID {
		return false
	}
	if prev.Period.Next() != h.Period {
		return false
	}
	return h.StartBalance.Equal(prev.EndBalance) &&
		h.StartPrices.RefCurrency.Equal(prev.EndPrices.RefCurrency) &&
		h.StartPrices.RefCrypto.Equal(prev.EndPrices.RefCrypto)
}
