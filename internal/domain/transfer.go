package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferDirection marks which side of a movement an entry books.
type TransferDirection string

const (
	TransferDebit  TransferDirection = "DEBIT"
	TransferCredit TransferDirection = "CREDIT"
)

// TransferKind classifies what a transfer represents.
type TransferKind string

const (
	// TransferMovement is a plain value movement between holdings.
	TransferMovement TransferKind = "MOVEMENT"
	// TransferSubscription is a share issuance inflow.
	TransferSubscription TransferKind = "SUBSCRIPTION"
	// TransferRedemption is a share redemption outflow.
	TransferRedemption TransferKind = "REDEMPTION"
	// TransferFee is the fee leg booked against the fee holding.
	TransferFee TransferKind = "FEE"
)

// Transfer is a single signed value movement booked against a holding.
// Every movement between holdings is a pair: the transfer and its
// opposite, whose amount is the exact negation, linked by opaque id.
// Both legs are written atomically; no reader ever observes one alone.
type Transfer struct {
	ID                 uuid.UUID
	HoldingID          uuid.UUID
	OppositeTransferID *uuid.UUID // set on fund-to-fund and intra-fund movements
	FeeHoldingID       *uuid.UUID // holding the fee leg was charged against
	Amount             decimal.Decimal // signed: credits positive, debits negative
	Fee                decimal.Decimal
	Direction          TransferDirection
	Kind               TransferKind
	Shares             decimal.Decimal // share delta for subscription/redemption
	Period             Period
	TxReference        string // external transaction id, if any
}

// Validate ensures the transfer adheres to domain rules.
func (t *Transfer) Validate() error {
	if t.HoldingID == uuid.Nil {
		return fmt.Errorf("%w: transfer must reference a holding", ErrValidation)
	}
	if t.Amount.IsZero() {
		return fmt.Errorf("%w: transfer amount cannot be zero", ErrValidation)
	}
	if err := t.Period.Validate(); err != nil {
		return err
	}
	switch t.Direction {
	case TransferDebit:
		if t.Amount.GreaterThan(decimal.Zero) {
			return fmt.Errorf("%w: debit transfer must carry a negative amount", ErrValidation)
		}
	case TransferCredit:
		if t.Amount.LessThan(decimal.Zero) {
			return fmt.Errorf("%w: credit transfer must carry a positive amount", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: transfer direction must be DEBIT or CREDIT", ErrValidation)
	}
	if t.Fee.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: transfer fee cannot be negative", ErrValidation)
	}
	switch t.Kind {
	case TransferMovement, TransferSubscription, TransferRedemption, TransferFee:
	default:
		return fmt.Errorf("%w: unknown transfer kind %q", ErrValidation, t.Kind)
	}
	return nil
}

// Mirrors reports whether other is a valid opposite transfer of t:
// mutually linked with exactly negated amounts.
func (t *Transfer) Mirrors(other *Transfer) bool {
	if t.OppositeTransferID == nil || other.OppositeTransferID == nil {
		return false
	}
	if *t.OppositeTransferID != other.ID || *other.OppositeTransferID != t.ID {
		return false
	}
	return t.Amount.Equal(other.Amount.Neg())
}
