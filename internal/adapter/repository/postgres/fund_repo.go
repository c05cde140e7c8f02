package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// fundRepository implements domain.FundRepository
type fundRepository struct {
	db *DB
}

// NewFundRepository creates a new fund repository
func NewFundRepository(db *DB) domain.FundRepository {
	return &fundRepository{db: db}
}

const fundColumns = `
	id, name, reporting_currency, primary_crypto_id,
	perf_fee_kind, perf_fee_rate, perf_fee_tiers,
	admin_fee_rate, admin_fee_frequency,
	initial_share_price, total_shares, high_water_mark, inception_period
`

// GetByID retrieves a fund by its ID
func (r *fundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE id = $1`

	fund, err := scanFund(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: fund %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get fund by ID: %w", err)
	}
	return fund, nil
}

// Create creates a new fund
func (r *fundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	query := `
		INSERT INTO funds (` + fundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	tiers, err := json.Marshal(fund.Fees.Performance.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal fee tiers: %w", err)
	}

	var primaryCryptoID interface{}
	if fund.PrimaryCryptoID != nil {
		primaryCryptoID = *fund.PrimaryCryptoID
	}

	_, err = r.db.ExecContext(ctx, query,
		fund.ID,
		fund.Name,
		fund.ReportingCurrency,
		primaryCryptoID,
		string(fund.Fees.Performance.Kind),
		fund.Fees.Performance.Rate.String(),
		tiers,
		fund.Fees.Admin.AnnualRate.String(),
		string(fund.Fees.Admin.Frequency),
		fund.InitialSharePrice.String(),
		fund.TotalShares.String(),
		fund.HighWaterMark.String(),
		fund.InceptionPeriod.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}
	return nil
}

// List retrieves all funds
func (r *fundRepository) List(ctx context.Context) ([]*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list funds: %w", err)
	}
	defer rows.Close()

	var funds []*domain.Fund
	for rows.Next() {
		fund, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, fund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate funds: %w", err)
	}
	return funds, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFund(row rowScanner) (*domain.Fund, error) {
	var (
		fund            domain.Fund
		primaryCryptoID sql.NullString
		perfKind        string
		perfRateStr     string
		tiersJSON       []byte
		adminRateStr    string
		adminFrequency  string
		initialPriceStr string
		totalSharesStr  string
		hwmStr          string
		periodStr       string
	)

	err := row.Scan(
		&fund.ID,
		&fund.Name,
		&fund.ReportingCurrency,
		&primaryCryptoID,
		&perfKind,
		&perfRateStr,
		&tiersJSON,
		&adminRateStr,
		&adminFrequency,
		&initialPriceStr,
		&totalSharesStr,
		&hwmStr,
		&periodStr,
	)
	if err != nil {
		return nil, err
	}

	if primaryCryptoID.Valid {
		cryptoUUID, err := uuid.Parse(primaryCryptoID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse primary_crypto_id: %w", err)
		}
		fund.PrimaryCryptoID = &cryptoUUID
	}

	fund.Fees.Performance.Kind = domain.FeeStrategyKind(perfKind)
	if fund.Fees.Performance.Rate, err = decimal.NewFromString(perfRateStr); err != nil {
		return nil, fmt.Errorf("failed to parse perf_fee_rate: %w", err)
	}
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &fund.Fees.Performance.Tiers); err != nil {
			return nil, fmt.Errorf("failed to parse perf_fee_tiers: %w", err)
		}
	}
	fund.Fees.Admin.Frequency = domain.AdminFeeFrequency(adminFrequency)
	if fund.Fees.Admin.AnnualRate, err = decimal.NewFromString(adminRateStr); err != nil {
		return nil, fmt.Errorf("failed to parse admin_fee_rate: %w", err)
	}
	if fund.InitialSharePrice, err = decimal.NewFromString(initialPriceStr); err != nil {
		return nil, fmt.Errorf("failed to parse initial_share_price: %w", err)
	}
	if fund.TotalShares, err = decimal.NewFromString(totalSharesStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_shares: %w", err)
	}
	if fund.HighWaterMark, err = decimal.NewFromString(hwmStr); err != nil {
		return nil, fmt.Errorf("failed to parse high_water_mark: %w", err)
	}
	if fund.InceptionPeriod, err = domain.ParsePeriod(periodStr); err != nil {
		return nil, fmt.Errorf("failed to parse inception_period: %w", err)
	}
	return &fund, nil
}
