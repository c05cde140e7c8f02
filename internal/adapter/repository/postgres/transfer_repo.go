package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// transferRepository implements domain.TransferRepository
type transferRepository struct {
	db *DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *DB) domain.TransferRepository {
	return &transferRepository{db: db}
}

const transferColumns = `
	id, holding_id, opposite_transfer_id, fee_holding_id,
	amount, fee, direction, kind, shares, period, tx_reference
`

// CreateGroup creates a transfer together with its opposite and fee legs
// in one database transaction; either all rows are applied or none
func (r *transferRepository) CreateGroup(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, t := range transfers {
		var oppositeID interface{}
		if t.OppositeTransferID != nil {
			oppositeID = *t.OppositeTransferID
		}
		var feeHoldingID interface{}
		if t.FeeHoldingID != nil {
			feeHoldingID = *t.FeeHoldingID
		}

		_, err = dbTx.ExecContext(ctx, query,
			t.ID,
			t.HoldingID,
			oppositeID,
			feeHoldingID,
			t.Amount.String(),
			t.Fee.String(),
			string(t.Direction),
			string(t.Kind),
			t.Shares.String(),
			string(t.Period),
			t.TxReference,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer group: %w", err)
	}
	return nil
}

// CreateFlow persists a subscription or redemption transfer and the
// fund's updated share count in one database transaction
func (r *transferRepository) CreateFlow(ctx context.Context, flow *domain.Transfer, fundID uuid.UUID, totalShares decimal.Decimal) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = dbTx.ExecContext(ctx, query,
		flow.ID,
		flow.HoldingID,
		nil,
		nil,
		flow.Amount.String(),
		flow.Fee.String(),
		string(flow.Direction),
		string(flow.Kind),
		flow.Shares.String(),
		string(flow.Period),
		flow.TxReference,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flow transfer: %w", err)
	}

	result, err := dbTx.ExecContext(ctx,
		`UPDATE funds SET total_shares = $2 WHERE id = $1`,
		fundID, totalShares.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update fund total shares: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: fund %s", domain.ErrNotFound, fundID)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flow: %w", err)
	}
	return nil
}

// ListByHolding retrieves all transfers booked against a holding
func (r *transferRepository) ListByHolding(ctx context.Context, holdingID uuid.UUID) ([]*domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE holding_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, holdingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	return collectTransfers(rows)
}

// SumByHolding returns the signed sum of transfer amounts booked against
// a holding
func (r *transferRepository) SumByHolding(ctx context.Context, holdingID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transfers WHERE holding_id = $1`

	var sumStr string
	if err := r.db.QueryRowContext(ctx, query, holdingID).Scan(&sumStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transfers: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse transfer sum: %w", err)
	}
	return sum, nil
}

// ListFlows retrieves the subscription and redemption transfers of a fund
// for one period
func (r *transferRepository) ListFlows(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.Transfer, error) {
	query := `
		SELECT t.id, t.holding_id, t.opposite_transfer_id, t.fee_holding_id,
		       t.amount, t.fee, t.direction, t.kind, t.shares, t.period, t.tx_reference
		FROM transfers t
		JOIN holdings h ON h.id = t.holding_id
		WHERE h.fund_id = $1 AND t.period = $2 AND t.kind IN ($3, $4)
		ORDER BY t.id
	`

	rows, err := r.db.QueryContext(ctx, query,
		fundID,
		string(period),
		string(domain.TransferSubscription),
		string(domain.TransferRedemption),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow transfers: %w", err)
	}
	defer rows.Close()

	return collectTransfers(rows)
}

func collectTransfers(rows *sql.Rows) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return transfers, nil
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var (
		transfer     domain.Transfer
		oppositeID   sql.NullString
		feeHoldingID sql.NullString
		amountStr    string
		feeStr       string
		direction    string
		kind         string
		sharesStr    string
		periodStr    string
	)

	err := row.Scan(
		&transfer.ID,
		&transfer.HoldingID,
		&oppositeID,
		&feeHoldingID,
		&amountStr,
		&feeStr,
		&direction,
		&kind,
		&sharesStr,
		&periodStr,
		&transfer.TxReference,
	)
	if err != nil {
		return nil, err
	}

	if oppositeID.Valid {
		oppUUID, err := uuid.Parse(oppositeID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse opposite_transfer_id: %w", err)
		}
		transfer.OppositeTransferID = &oppUUID
	}
	if feeHoldingID.Valid {
		feeUUID, err := uuid.Parse(feeHoldingID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fee_holding_id: %w", err)
		}
		transfer.FeeHoldingID = &feeUUID
	}

	if transfer.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if transfer.Fee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse fee: %w", err)
	}
	if transfer.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("failed to parse shares: %w", err)
	}
	transfer.Direction = domain.TransferDirection(direction)
	transfer.Kind = domain.TransferKind(kind)
	transfer.Period = domain.Period(periodStr)

	return &transfer, nil
}
