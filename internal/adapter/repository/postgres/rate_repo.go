package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// rateRepository implements domain.RateRepository
type rateRepository struct {
	db *DB
}

// NewRateRepository creates a new rate repository
func NewRateRepository(db *DB) domain.RateRepository {
	return &rateRepository{db: db}
}

// AddCurrencyRate records a currency rate snapshot
func (r *rateRepository) AddCurrencyRate(ctx context.Context, rate *domain.CurrencyRate) error {
	query := `
		INSERT INTO currency_rates (id, currency_code, ref_currency, ref_crypto, timestamp, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		rate.ID,
		rate.CurrencyCode,
		rate.RefCurrency.String(),
		rate.RefCrypto.String(),
		rate.Timestamp,
		rate.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to add currency rate: %w", err)
	}
	return nil
}

// AddListing records a crypto listing snapshot
func (r *rateRepository) AddListing(ctx context.Context, listing *domain.Listing) error {
	query := `
		INSERT INTO listings (id, crypto_asset_id, symbol, ref_currency, ref_crypto, timestamp, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		listing.ID,
		listing.CryptoAssetID,
		listing.Symbol,
		listing.RefCurrency.String(),
		listing.RefCrypto.String(),
		listing.Timestamp,
		listing.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to add listing: %w", err)
	}
	return nil
}

// LatestCurrencyRate retrieves the most recent rate for a currency at or
// before the given time
func (r *rateRepository) LatestCurrencyRate(ctx context.Context, code string, at time.Time) (*domain.CurrencyRate, error) {
	query := `
		SELECT id, currency_code, ref_currency, ref_crypto, timestamp, source
		FROM currency_rates
		WHERE currency_code = $1 AND timestamp <= $2
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var (
		rate           domain.CurrencyRate
		refCurrencyStr string
		refCryptoStr   string
	)
	err := r.db.QueryRowContext(ctx, query, code, at).Scan(
		&rate.ID,
		&rate.CurrencyCode,
		&refCurrencyStr,
		&refCryptoStr,
		&rate.Timestamp,
		&rate.Source,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: currency rate %s", domain.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to get latest currency rate: %w", err)
	}

	if rate.RefCurrency, err = decimal.NewFromString(refCurrencyStr); err != nil {
		return nil, fmt.Errorf("failed to parse ref_currency: %w", err)
	}
	if rate.RefCrypto, err = decimal.NewFromString(refCryptoStr); err != nil {
		return nil, fmt.Errorf("failed to parse ref_crypto: %w", err)
	}
	return &rate, nil
}

// LatestListing retrieves the most recent listing for a crypto asset at
// or before the given time
func (r *rateRepository) LatestListing(ctx context.Context, cryptoID uuid.UUID, at time.Time) (*domain.Listing, error) {
	query := `
		SELECT id, crypto_asset_id, symbol, ref_currency, ref_crypto, timestamp, source
		FROM listings
		WHERE crypto_asset_id = $1 AND timestamp <= $2
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var (
		listing        domain.Listing
		refCurrencyStr string
		refCryptoStr   string
	)
	err := r.db.QueryRowContext(ctx, query, cryptoID, at).Scan(
		&listing.ID,
		&listing.CryptoAssetID,
		&listing.Symbol,
		&refCurrencyStr,
		&refCryptoStr,
		&listing.Timestamp,
		&listing.Source,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, cryptoID)
		}
		return nil, fmt.Errorf("failed to get latest listing: %w", err)
	}

	if listing.RefCurrency, err = decimal.NewFromString(refCurrencyStr); err != nil {
		return nil, fmt.Errorf("failed to parse ref_currency: %w", err)
	}
	if listing.RefCrypto, err = decimal.NewFromString(refCryptoStr); err != nil {
		return nil, fmt.Errorf("failed to parse ref_crypto: %w", err)
	}
	return &listing, nil
}
