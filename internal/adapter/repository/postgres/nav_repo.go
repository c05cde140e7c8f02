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

// navRepository implements domain.NavRepository
type navRepository struct {
	db *DB
}

// NewNavRepository creates a new nav repository
func NewNavRepository(db *DB) domain.NavRepository {
	return &navRepository{db: db}
}

const navColumns = `
	id, fund_id, period, total_value, total_shares,
	share_gross, share_nav, high_water_mark, next_hwm,
	performance_fee, admin_fee, in_out_shares, in_out_value,
	rate_timestamp, created_at
`

// GetByFundPeriod retrieves the NAV record for one (fund, period)
func (r *navRepository) GetByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) (*domain.Nav, error) {
	query := `SELECT ` + navColumns + ` FROM navs WHERE fund_id = $1 AND period = $2`

	nav, err := scanNav(r.db.QueryRowContext(ctx, query, fundID, string(period)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: nav for fund %s period %s", domain.ErrNotFound, fundID, period)
		}
		return nil, fmt.Errorf("failed to get nav: %w", err)
	}
	return nav, nil
}

// Create persists a NAV record and advances the fund's high-water mark
// to nav.NextHWM in the same database transaction
func (r *navRepository) Create(ctx context.Context, nav *domain.Nav) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertQuery := `
		INSERT INTO navs (` + navColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = dbTx.ExecContext(ctx, insertQuery,
		nav.ID,
		nav.FundID,
		string(nav.Period),
		nav.TotalValue.String(),
		nav.TotalShares.String(),
		nav.ShareGross.String(),
		nav.ShareNAV.String(),
		nav.HighWaterMark.String(),
		nav.NextHWM.String(),
		nav.PerformanceFee.String(),
		nav.AdminFee.String(),
		nav.InOutShares.String(),
		nav.InOutValue.String(),
		nav.RateTimestamp,
		nav.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert nav: %w", err)
	}

	updateQuery := `UPDATE funds SET high_water_mark = $2 WHERE id = $1`
	_, err = dbTx.ExecContext(ctx, updateQuery, nav.FundID, nav.NextHWM.String())
	if err != nil {
		return fmt.Errorf("failed to advance high-water mark: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit nav: %w", err)
	}
	return nil
}

// ListByFund retrieves all NAV records of a fund in period order
func (r *navRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Nav, error) {
	query := `SELECT ` + navColumns + ` FROM navs WHERE fund_id = $1 ORDER BY period`

	rows, err := r.db.QueryContext(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list navs: %w", err)
	}
	defer rows.Close()

	var navs []*domain.Nav
	for rows.Next() {
		nav, err := scanNav(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nav: %w", err)
		}
		navs = append(navs, nav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate navs: %w", err)
	}
	return navs, nil
}

func scanNav(row rowScanner) (*domain.Nav, error) {
	var (
		nav       domain.Nav
		periodStr string
		decimals  [10]string
	)

	err := row.Scan(
		&nav.ID,
		&nav.FundID,
		&periodStr,
		&decimals[0],
		&decimals[1],
		&decimals[2],
		&decimals[3],
		&decimals[4],
		&decimals[5],
		&decimals[6],
		&decimals[7],
		&decimals[8],
		&decimals[9],
		&nav.RateTimestamp,
		&nav.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	nav.Period = domain.Period(periodStr)

	fields := []*decimal.Decimal{
		&nav.TotalValue, &nav.TotalShares,
		&nav.ShareGross, &nav.ShareNAV,
		&nav.HighWaterMark, &nav.NextHWM,
		&nav.PerformanceFee, &nav.AdminFee,
		&nav.InOutShares, &nav.InOutValue,
	}
	for i, field := range fields {
		if *field, err = decimal.NewFromString(decimals[i]); err != nil {
			return nil, fmt.Errorf("failed to parse nav decimal column: %w", err)
		}
	}
	return &nav, nil
}
