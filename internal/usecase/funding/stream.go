package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/monitoring"
)

// StreamReconciler consumes the exchange's order-update stream and
// applies each event to the ledger: fills are apportioned across
// fundings, cancellations and rejections transition the order state.
// Events for orders the ledger does not track are skipped.
type StreamReconciler struct {
	Exchange  domain.ExchangeClient
	OrderRepo domain.OrderRepository
	Funding   *Service
	Log       *logger.Logger
	Metrics   *monitoring.Metrics
}

// NewStreamReconciler creates a new StreamReconciler instance.
func NewStreamReconciler(
	exchange domain.ExchangeClient,
	orderRepo domain.OrderRepository,
	funding *Service,
	log *logger.Logger,
	metrics *monitoring.Metrics,
) *StreamReconciler {
	return &StreamReconciler{
		Exchange:  exchange,
		OrderRepo: orderRepo,
		Funding:   funding,
		Log:       log,
		Metrics:   metrics,
	}
}

// Run subscribes to the stream and processes events until ctx is done.
// A failing event is logged and skipped; the exchange remains the source
// of truth, so a missed fill resurfaces on the next snapshot sync.
func (r *StreamReconciler) Run(ctx context.Context) error {
	updates := make(chan domain.OrderUpdate, 64)
	stop, err := r.Exchange.SubscribeOrderUpdates(ctx, updates)
	if err != nil {
		return fmt.Errorf("subscribing to order updates: %w", err)
	}
	defer stop()

	r.Log.Infow("order update stream started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if err := r.apply(ctx, update); err != nil {
				r.Log.Errorw("order update not applied",
					"external_order_id", update.Order.ExternalID, "error", err)
			}
		}
	}
}

func (r *StreamReconciler) apply(ctx context.Context, update domain.OrderUpdate) error {
	order, err := r.OrderRepo.GetByExternalOrderID(ctx, update.Order.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.Log.Debugw("update for untracked order skipped",
				"external_order_id", update.Order.ExternalID)
			return nil
		}
		return err
	}

	if update.Trade != nil {
		trade := &domain.Trade{
			ID:              uuid.New(),
			OrderID:         order.ID,
			Price:           update.Trade.Price,
			Executed:        update.Trade.Executed,
			Total:           update.Trade.Total,
			Fee:             update.Trade.Fee,
			Maker:           update.Trade.Maker,
			ExternalTradeID: update.Trade.ExternalID,
			ExternalTxID:    update.Trade.ExternalTxID,
			Time:            update.Trade.Time,
		}
		if _, err := r.Funding.ReconcileFill(ctx, order.ID, trade); err != nil {
			return err
		}
		r.Metrics.FillReconciled()
		r.Log.Infow("fill reconciled",
			"order_id", order.ID,
			"executed", trade.Executed.String(),
			"price", trade.Price.String(),
		)
		return nil
	}

	switch update.Order.State {
	case domain.OrderStateCancelled:
		return r.Funding.Cancel(ctx, order.ID)
	case domain.OrderStateRejected:
		return r.Funding.Reject(ctx, order.ID)
	default:
		return nil
	}
}
