package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// holdingRepository implements domain.HoldingRepository
type holdingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *DB) domain.HoldingRepository {
	return &holdingRepository{db: db}
}

const holdingColumns = `
	id, fund_id, currency, crypto_id, period, previous_holding_id,
	start_at, end_at, start_balance, end_balance,
	start_price_currency, start_price_crypto, start_price_fund_share,
	end_price_currency, end_price_crypto, end_price_fund_share,
	layer_idx, closed
`

// GetByID retrieves a holding by its ID
func (r *holdingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE id = $1`

	holding, err := scanHolding(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get holding by ID: %w", err)
	}
	return holding, nil
}

// Create creates a new holding
func (r *holdingRepository) Create(ctx context.Context, holding *domain.Holding) error {
	query := `
		INSERT INTO holdings (` + holdingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	var currency interface{}
	if holding.Asset.Currency != "" {
		currency = holding.Asset.Currency
	}
	var cryptoID interface{}
	if holding.Asset.CryptoID != nil {
		cryptoID = *holding.Asset.CryptoID
	}
	var previousID interface{}
	if holding.PreviousHoldingID != nil {
		previousID = *holding.PreviousHoldingID
	}

	_, err := r.db.ExecContext(ctx, query,
		holding.ID,
		holding.FundID,
		currency,
		cryptoID,
		string(holding.Period),
		previousID,
		holding.StartAt,
		holding.EndAt,
		holding.StartBalance.String(),
		holding.EndBalance.String(),
		holding.StartPrices.RefCurrency.String(),
		holding.StartPrices.RefCrypto.String(),
		holding.StartPrices.FundShare.String(),
		holding.EndPrices.RefCurrency.String(),
		holding.EndPrices.RefCrypto.String(),
		holding.EndPrices.FundShare.String(),
		holding.LayerIdx,
		holding.Closed,
	)
	if err != nil {
		return fmt.Errorf("failed to create holding: %w", err)
	}
	return nil
}

// GetByFundAssetPeriod retrieves the holding for one (fund, asset, period)
func (r *holdingRepository) GetByFundAssetPeriod(ctx context.Context, fundID uuid.UUID, asset domain.AssetRef, period domain.Period) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE fund_id = $1 AND ` + assetPredicate(asset) + ` AND period = $3`

	holding, err := scanHolding(r.db.QueryRowContext(ctx, query, fundID, assetArg(asset), string(period)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding for %s period %s", domain.ErrNotFound, asset.Key(), period)
		}
		return nil, fmt.Errorf("failed to get holding by fund, asset and period: %w", err)
	}
	return holding, nil
}

// GetHead retrieves the most recent holding of a (fund, asset) chain
func (r *holdingRepository) GetHead(ctx context.Context, fundID uuid.UUID, asset domain.AssetRef) (*domain.Holding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM holdings
		WHERE fund_id = $1 AND ` + assetPredicate(asset) + `
		ORDER BY layer_idx DESC
		LIMIT 1
	`

	holding, err := scanHolding(r.db.QueryRowContext(ctx, query, fundID, assetArg(asset)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no holdings for %s", domain.ErrNotFound, asset.Key())
		}
		return nil, fmt.Errorf("failed to get chain head: %w", err)
	}
	return holding, nil
}

// ListByFundPeriod retrieves all holdings of a fund for one period
func (r *holdingRepository) ListByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.Holding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM holdings
		WHERE fund_id = $1 AND period = $2
		ORDER BY currency NULLS LAST, crypto_id
	`

	rows, err := r.db.QueryContext(ctx, query, fundID, string(period))
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*domain.Holding
	for rows.Next() {
		holding, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, holding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}
	return holdings, nil
}

// Close persists a holding's end balance, end prices and closed flag
func (r *holdingRepository) Close(ctx context.Context, holding *domain.Holding) error {
	query := `
		UPDATE holdings
		SET end_balance = $2, end_at = $3,
		    end_price_currency = $4, end_price_crypto = $5, end_price_fund_share = $6,
		    closed = TRUE
		WHERE id = $1 AND closed = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		holding.ID,
		holding.EndBalance.String(),
		holding.EndAt,
		holding.EndPrices.RefCurrency.String(),
		holding.EndPrices.RefCrypto.String(),
		holding.EndPrices.FundShare.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to close holding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: holding %s is closed or missing", domain.ErrImmutableRecord, holding.ID)
	}
	return nil
}

// assetPredicate returns the WHERE clause matching holdings of one asset;
// the asset value itself binds as $2.
func assetPredicate(asset domain.AssetRef) string {
	if asset.IsFiat() {
		return "currency = $2 AND crypto_id IS NULL"
	}
	return "crypto_id = $2 AND currency IS NULL"
}

func assetArg(asset domain.AssetRef) interface{} {
	if asset.IsFiat() {
		return asset.Currency
	}
	return *asset.CryptoID
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var (
		holding    domain.Holding
		currency   sql.NullString
		cryptoID   sql.NullString
		periodStr  string
		previousID sql.NullString
		balances   [2]string
		prices     [6]string
	)

	err := row.Scan(
		&holding.ID,
		&holding.FundID,
		&currency,
		&cryptoID,
		&periodStr,
		&previousID,
		&holding.StartAt,
		&holding.EndAt,
		&balances[0],
		&balances[1],
		&prices[0],
		&prices[1],
		&prices[2],
		&prices[3],
		&prices[4],
		&prices[5],
		&holding.LayerIdx,
		&holding.Closed,
	)
	if err != nil {
		return nil, err
	}

	if currency.Valid {
		holding.Asset = domain.FiatAsset(currency.String)
	} else if cryptoID.Valid {
		cryptoUUID, err := uuid.Parse(cryptoID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse crypto_id: %w", err)
		}
		holding.Asset = domain.CryptoAssetRef(cryptoUUID)
	}
	holding.Period = domain.Period(periodStr)

	if previousID.Valid {
		prevUUID, err := uuid.Parse(previousID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse previous_holding_id: %w", err)
		}
		holding.PreviousHoldingID = &prevUUID
	}

	if holding.StartBalance, err = decimal.NewFromString(balances[0]); err != nil {
		return nil, fmt.Errorf("failed to parse start_balance: %w", err)
	}
	if holding.EndBalance, err = decimal.NewFromString(balances[1]); err != nil {
		return nil, fmt.Errorf("failed to parse end_balance: %w", err)
	}

	parsed := make([]decimal.Decimal, len(prices))
	for i, s := range prices {
		if parsed[i], err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("failed to parse holding price: %w", err)
		}
	}
	holding.StartPrices = domain.HoldingPrices{RefCurrency: parsed[0], RefCrypto: parsed[1], FundShare: parsed[2]}
	holding.EndPrices = domain.HoldingPrices{RefCurrency: parsed[3], RefCrypto: parsed[4], FundShare: parsed[5]}

	return &holding, nil
}
