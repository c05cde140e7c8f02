package periodclose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/lock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/monitoring"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/ledger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/nav"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/rates"
)

// Closer orchestrates the end-of-period sequence for a fund: finalize
// every open holding at booked balances and period-end prices, open the
// successor holdings, then compute the period NAV. The whole sequence
// runs under the fund's exclusive lock so that concurrent transfer or
// fill activity cannot interleave with the close.
type Closer struct {
	FundRepo    domain.FundRepository
	HoldingRepo domain.HoldingRepository
	Ledger      *ledger.Service
	Nav         *nav.Calculator
	Resolver    *rates.Resolver
	Locker      lock.FundLocker
	Log         *logger.Logger
	Metrics     *monitoring.Metrics

	// Workers bounds the number of funds closed concurrently by Run.
	Workers int
}

// NewCloser creates a new Closer instance.
func NewCloser(
	fundRepo domain.FundRepository,
	holdingRepo domain.HoldingRepository,
	ledgerSvc *ledger.Service,
	navCalc *nav.Calculator,
	resolver *rates.Resolver,
	locker lock.FundLocker,
	log *logger.Logger,
	metrics *monitoring.Metrics,
	workers int,
) *Closer {
	if workers < 1 {
		workers = 1
	}
	return &Closer{
		FundRepo:    fundRepo,
		HoldingRepo: holdingRepo,
		Ledger:      ledgerSvc,
		Nav:         navCalc,
		Resolver:    resolver,
		Locker:      locker,
		Log:         log,
		Metrics:     metrics,
		Workers:     workers,
	}
}

// holdingClose carries the valuation worked out for one holding before
// the fund total is known.
type holdingClose struct {
	holding  *domain.Holding
	balance  decimal.Decimal
	point    domain.RatePoint
	refValue decimal.Decimal
}

// CloseFund runs the full close sequence for one fund and period and
// returns the resulting NAV record. The sequence is restartable: a
// holding already closed at the same values is skipped, a successor
// already open is left alone, and an already-computed NAV fails with
// ErrAlreadyComputed.
func (c *Closer) CloseFund(ctx context.Context, fundID uuid.UUID, period domain.Period) (*domain.Nav, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	release, err := c.Locker.Acquire(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("acquiring fund lock: %w", err)
	}
	defer release()

	fund, err := c.FundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}

	log := c.Log.With("fund_id", fund.ID, "period", period.String())
	log.Infow("closing period")

	holdings, err := c.HoldingRepo.ListByFundPeriod(ctx, fund.ID, period)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("%w: fund %s has no holdings in period %s", domain.ErrPreconditionNotMet, fund.ID, period)
	}

	closes, totalValue, err := c.valueHoldings(ctx, holdings, period)
	if err != nil {
		return nil, err
	}

	// FundShare is each holding's slice of the fund total, so it can
	// only be filled in once every holding has been valued.
	for _, hc := range closes {
		if err := c.closeOne(ctx, hc, totalValue); err != nil {
			return nil, err
		}
	}

	navRecord, err := c.Nav.ComputePeriodNAV(ctx, fund.ID, period)
	if err != nil {
		return nil, err
	}
	c.Metrics.NavComputed()

	if err := c.openSuccessors(ctx, fund, closes, period.Next()); err != nil {
		return nil, err
	}

	log.Infow("period closed",
		"total_value", navRecord.TotalValue.String(),
		"share_nav", navRecord.ShareNAV.String(),
	)
	return navRecord, nil
}

// valueHoldings works out every holding's booked balance and reference
// currency value at period end.
func (c *Closer) valueHoldings(ctx context.Context, holdings []*domain.Holding, period domain.Period) ([]holdingClose, decimal.Decimal, error) {
	valuedAt := period.End()
	closes := make([]holdingClose, 0, len(holdings))
	totalValue := decimal.Zero

	for _, h := range holdings {
		// A holding closed by an earlier attempt keeps its recorded
		// valuation. Re-resolving could pick up a rate backfilled since
		// that close, and the holding is immutable at other values.
		if h.Closed {
			refValue := h.EndBalance.Mul(h.EndPrices.RefCurrency)
			totalValue = totalValue.Add(refValue)
			closes = append(closes, holdingClose{
				holding: h,
				balance: h.EndBalance,
				point: domain.RatePoint{
					Asset:       h.Asset,
					RefCurrency: h.EndPrices.RefCurrency,
					RefCrypto:   h.EndPrices.RefCrypto,
					Timestamp:   valuedAt,
				},
				refValue: refValue,
			})
			continue
		}

		balance, err := c.Ledger.BookedBalance(ctx, h.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}

		point, err := c.Resolver.Resolve(ctx, h.Asset, valuedAt)
		if err != nil {
			if errors.Is(err, domain.ErrNoRateAvailable) {
				c.Metrics.RateLookupFailed()
			}
			return nil, decimal.Zero, err
		}

		refValue := balance.Mul(point.RefCurrency)
		totalValue = totalValue.Add(refValue)
		closes = append(closes, holdingClose{
			holding:  h,
			balance:  balance,
			point:    point,
			refValue: refValue,
		})
	}
	return closes, totalValue, nil
}

func (c *Closer) closeOne(ctx context.Context, hc holdingClose, totalValue decimal.Decimal) error {
	fundShare := decimal.Zero
	if !totalValue.IsZero() {
		fundShare = hc.refValue.Div(totalValue).Mul(decimal.NewFromInt(100))
	}

	endPrices := domain.HoldingPrices{
		RefCurrency: hc.point.RefCurrency,
		RefCrypto:   hc.point.RefCrypto,
		FundShare:   fundShare,
	}
	if _, err := c.Ledger.CloseHolding(ctx, hc.holding.ID, hc.balance, endPrices); err != nil {
		return fmt.Errorf("closing holding %s: %w", hc.holding.ID, err)
	}
	return nil
}

// openSuccessors starts the next-period holding of every chain touched
// by this close. Chains whose successor already exists are left alone.
func (c *Closer) openSuccessors(ctx context.Context, fund *domain.Fund, closes []holdingClose, next domain.Period) error {
	for _, hc := range closes {
		_, err := c.HoldingRepo.GetByFundAssetPeriod(ctx, fund.ID, hc.holding.Asset, next)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if _, err := c.Ledger.OpenHolding(ctx, fund, hc.holding.Asset, next); err != nil {
			return fmt.Errorf("opening successor for %s: %w", hc.holding.Asset.Key(), err)
		}
	}
	return nil
}

// Run closes the given period for every fund, spreading the work over
// Workers goroutines. Funds close independently: one fund's failure
// does not stop the others, and all failures are reported together.
func (c *Closer) Run(ctx context.Context, period domain.Period) error {
	funds, err := c.FundRepo.List(ctx)
	if err != nil {
		return err
	}

	jobs := make(chan *domain.Fund)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i := 0; i < c.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fund := range jobs {
				start := time.Now()
				if _, err := c.CloseFund(ctx, fund.ID, period); err != nil {
					c.Metrics.PeriodCloseFailed(failureReason(err))
					c.Log.Errorw("period close failed",
						"fund_id", fund.ID, "period", period.String(), "error", err)
					mu.Lock()
					errs = append(errs, fmt.Errorf("fund %s: %w", fund.ID, err))
					mu.Unlock()
					continue
				}
				c.Metrics.ObservePeriodClose(period.String(), time.Since(start))
			}
		}()
	}

	for _, fund := range funds {
		select {
		case jobs <- fund:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return errors.Join(errs...)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoRateAvailable):
		return "no_rate"
	case errors.Is(err, domain.ErrPreconditionNotMet):
		return "precondition"
	case errors.Is(err, domain.ErrAlreadyComputed):
		return "already_computed"
	case errors.Is(err, domain.ErrChainBroken):
		return "chain_broken"
	default:
		return "other"
	}
}
