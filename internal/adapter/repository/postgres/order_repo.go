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

// orderRepository implements domain.OrderRepository
type orderRepository struct {
	db *DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DB) domain.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `
	id, account, base_crypto_id, quote_currency, quote_crypto_id,
	side, type, state, price, amount, total,
	maker_filled, taker_filled, period, external_order_id, created_at
`

// GetByID retrieves an order by its ID
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}
	return order, nil
}

// GetByExternalOrderID retrieves an order by its exchange-assigned ID
func (r *orderRepository) GetByExternalOrderID(ctx context.Context, externalID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE external_order_id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order with external id %s", domain.ErrNotFound, externalID)
		}
		return nil, fmt.Errorf("failed to get order by external ID: %w", err)
	}
	return order, nil
}

// Create creates a new order
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var quoteCurrency interface{}
	if order.QuoteAsset.Currency != "" {
		quoteCurrency = order.QuoteAsset.Currency
	}
	var quoteCryptoID interface{}
	if order.QuoteAsset.CryptoID != nil {
		quoteCryptoID = *order.QuoteAsset.CryptoID
	}

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.Account,
		order.BaseCryptoID,
		quoteCurrency,
		quoteCryptoID,
		string(order.Side),
		string(order.Type),
		string(order.State),
		order.Price.String(),
		order.Amount.String(),
		order.Total.String(),
		order.MakerFilled.String(),
		order.TakerFilled.String(),
		string(order.Period),
		order.ExternalOrderID,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// CreateFundings creates all fundings of one order in a database
// transaction
func (r *orderRepository) CreateFundings(ctx context.Context, fundings []*domain.OrderFunding) error {
	if len(fundings) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := insertFundings(ctx, dbTx, fundings); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fundings: %w", err)
	}
	return nil
}

// ListFundings retrieves the fundings of one order
func (r *orderRepository) ListFundings(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderFunding, error) {
	query := `
		SELECT id, order_id, fund_id, period, percentage, amount, total
		FROM order_fundings
		WHERE order_id = $1
		ORDER BY percentage DESC, fund_id
	`
	return r.queryFundings(ctx, query, orderID)
}

// ListFundingsByFundPeriod retrieves a fund's fundings for one period
func (r *orderRepository) ListFundingsByFundPeriod(ctx context.Context, fundID uuid.UUID, period domain.Period) ([]*domain.OrderFunding, error) {
	query := `
		SELECT id, order_id, fund_id, period, percentage, amount, total
		FROM order_fundings
		WHERE fund_id = $1 AND period = $2
		ORDER BY order_id
	`
	return r.queryFundings(ctx, query, fundID, string(period))
}

func (r *orderRepository) queryFundings(ctx context.Context, query string, args ...interface{}) ([]*domain.OrderFunding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list order fundings: %w", err)
	}
	defer rows.Close()

	var fundings []*domain.OrderFunding
	for rows.Next() {
		funding, err := scanFunding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order funding: %w", err)
		}
		fundings = append(fundings, funding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order fundings: %w", err)
	}
	return fundings, nil
}

// RecordFill persists a trade, the updated fundings and the updated
// order state and fill counters in one database transaction
func (r *orderRepository) RecordFill(ctx context.Context, order *domain.Order, trade *domain.Trade, fundings []*domain.OrderFunding) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertTradeQuery := `
		INSERT INTO trades (id, order_id, price, executed, total, fee, maker, external_trade_id, external_tx_id, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = dbTx.ExecContext(ctx, insertTradeQuery,
		trade.ID,
		trade.OrderID,
		trade.Price.String(),
		trade.Executed.String(),
		trade.Total.String(),
		trade.Fee.String(),
		trade.Maker,
		trade.ExternalTradeID,
		trade.ExternalTxID,
		trade.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	updateFundingQuery := `
		UPDATE order_fundings
		SET amount = $2, total = $3
		WHERE id = $1
	`
	for _, funding := range fundings {
		_, err = dbTx.ExecContext(ctx, updateFundingQuery,
			funding.ID,
			funding.Amount.String(),
			funding.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update order funding: %w", err)
		}
	}

	updateOrderQuery := `
		UPDATE orders
		SET state = $2, maker_filled = $3, taker_filled = $4
		WHERE id = $1
	`
	_, err = dbTx.ExecContext(ctx, updateOrderQuery,
		order.ID,
		string(order.State),
		order.MakerFilled.String(),
		order.TakerFilled.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fill: %w", err)
	}
	return nil
}

// UpdateState persists an order state transition without a fill
func (r *orderRepository) UpdateState(ctx context.Context, orderID uuid.UUID, state domain.OrderState) error {
	query := `UPDATE orders SET state = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, orderID, string(state))
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return nil
}

// ListTrades retrieves the trades of one order
func (r *orderRepository) ListTrades(ctx context.Context, orderID uuid.UUID) ([]*domain.Trade, error) {
	query := `
		SELECT id, order_id, price, executed, total, fee, maker, external_trade_id, external_tx_id, time
		FROM trades
		WHERE order_id = $1
		ORDER BY time
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

func insertFundings(ctx context.Context, dbTx *sql.Tx, fundings []*domain.OrderFunding) error {
	query := `
		INSERT INTO order_fundings (id, order_id, fund_id, period, percentage, amount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, f := range fundings {
		_, err := dbTx.ExecContext(ctx, query,
			f.ID,
			f.OrderID,
			f.FundID,
			string(f.Period),
			f.Percentage.String(),
			f.Amount.String(),
			f.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order funding: %w", err)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order         domain.Order
		quoteCurrency sql.NullString
		quoteCryptoID sql.NullString
		side          string
		orderType     string
		state         string
		periodStr     string
		decimals      [5]string
	)

	err := row.Scan(
		&order.ID,
		&order.Account,
		&order.BaseCryptoID,
		&quoteCurrency,
		&quoteCryptoID,
		&side,
		&orderType,
		&state,
		&decimals[0],
		&decimals[1],
		&decimals[2],
		&decimals[3],
		&decimals[4],
		&periodStr,
		&order.ExternalOrderID,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if quoteCurrency.Valid {
		order.QuoteAsset = domain.FiatAsset(quoteCurrency.String)
	} else if quoteCryptoID.Valid {
		cryptoUUID, err := uuid.Parse(quoteCryptoID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse quote_crypto_id: %w", err)
		}
		order.QuoteAsset = domain.CryptoAssetRef(cryptoUUID)
	}

	order.Side = domain.OrderSide(side)
	order.Type = domain.OrderType(orderType)
	order.State = domain.OrderState(state)
	order.Period = domain.Period(periodStr)

	if order.Price, err = decimal.NewFromString(decimals[0]); err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	if order.Amount, err = decimal.NewFromString(decimals[1]); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if order.Total, err = decimal.NewFromString(decimals[2]); err != nil {
		return nil, fmt.Errorf("failed to parse total: %w", err)
	}
	if order.MakerFilled, err = decimal.NewFromString(decimals[3]); err != nil {
		return nil, fmt.Errorf("failed to parse maker_filled: %w", err)
	}
	if order.TakerFilled, err = decimal.NewFromString(decimals[4]); err != nil {
		return nil, fmt.Errorf("failed to parse taker_filled: %w", err)
	}

	return &order, nil
}

func scanFunding(row rowScanner) (*domain.OrderFunding, error) {
	var (
		funding   domain.OrderFunding
		periodStr string
		decimals  [3]string
	)

	err := row.Scan(
		&funding.ID,
		&funding.OrderID,
		&funding.FundID,
		&periodStr,
		&decimals[0],
		&decimals[1],
		&decimals[2],
	)
	if err != nil {
		return nil, err
	}

	funding.Period = domain.Period(periodStr)
	if funding.Percentage, err = decimal.NewFromString(decimals[0]); err != nil {
		return nil, fmt.Errorf("failed to parse percentage: %w", err)
	}
	if funding.Amount, err = decimal.NewFromString(decimals[1]); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if funding.Total, err = decimal.NewFromString(decimals[2]); err != nil {
		return nil, fmt.Errorf("failed to parse total: %w", err)
	}
	return &funding, nil
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		trade    domain.Trade
		decimals [4]string
	)

	err := row.Scan(
		&trade.ID,
		&trade.OrderID,
		&decimals[0],
		&decimals[1],
		&decimals[2],
		&decimals[3],
		&trade.Maker,
		&trade.ExternalTradeID,
		&trade.ExternalTxID,
		&trade.Time,
	)
	if err != nil {
		return nil, err
	}

	if trade.Price, err = decimal.NewFromString(decimals[0]); err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	if trade.Executed, err = decimal.NewFromString(decimals[1]); err != nil {
		return nil, fmt.Errorf("failed to parse executed: %w", err)
	}
	if trade.Total, err = decimal.NewFromString(decimals[2]); err != nil {
		return nil, fmt.Errorf("failed to parse total: %w", err)
	}
	if trade.Fee, err = decimal.NewFromString(decimals[3]); err != nil {
		return nil, fmt.Errorf("failed to parse fee: %w", err)
	}
	return &trade, nil
}
