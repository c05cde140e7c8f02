package domain

import "errors"

// Error taxonomy for the ledger core. Services wrap these sentinels with
// fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	// ErrValidation rejects malformed input synchronously, never
	// partially applied.
	ErrValidation = errors.New("validation failed")

	// ErrChainBroken marks a missing, duplicated or cyclic link in a
	// holding chain. Fatal for the (fund, asset); never auto-repaired.
	ErrChainBroken = errors.New("holding chain broken")

	// ErrImmutableRecord is returned when a closed record would be
	// mutated with different values.
	ErrImmutableRecord = errors.New("record is immutable once closed")

	// ErrInsufficientBalance rejects a debit that would drive a
	// non-negative-balance asset negative.
	ErrInsufficientBalance = errors.New("insufficient holding balance")

	// ErrPeriodClosed rejects writes into an already-closed booking period.
	ErrPeriodClosed = errors.New("booking period already closed")

	// ErrCurrencyMismatch rejects a same-asset transfer whose holdings
	// disagree on the asset.
	ErrCurrencyMismatch = errors.New("holdings disagree on asset")

	// ErrAllocation rejects order funding percentages that do not sum to
	// 100% or duplicate allocations for a booking period.
	ErrAllocation = errors.New("invalid order allocation")

	// ErrTerminalOrder rejects fill reconciliation against an order in a
	// terminal state.
	ErrTerminalOrder = errors.New("order is in a terminal state")

	// ErrNoRateAvailable means no rate/listing exists at or before the
	// requested time. Hard stop: callers must never synthesize a value.
	ErrNoRateAvailable = errors.New("no rate available at or before requested time")

	// ErrPreconditionNotMet means a NAV computation was requested while
	// holdings or fundings for the period are not finalized.
	ErrPreconditionNotMet = errors.New("period not finalized")

	// ErrAlreadyComputed means a NAV record already exists for the
	// (fund, period); NAV is never recomputed in place.
	ErrAlreadyComputed = errors.New("nav already computed for period")

	// ErrNotFound is the repository-level miss reported to services.
	ErrNotFound = errors.New("record not found")

	// ErrExternalAPI wraps terminal failures from exchange/explorer
	// collaborators after boundary retries are exhausted.
	ErrExternalAPI = errors.New("external api failure")
)
