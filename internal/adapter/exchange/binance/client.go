package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
)

// Client implements domain.ExchangeClient against the Binance spot API.
// Every REST call passes through a shared rate limiter; failures that
// survive the SDK's own handling surface as domain.ErrExternalAPI so the
// core can treat the exchange as a single fallible collaborator.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config holds the Binance API credentials and tuning.
type Config struct {
	APIKey     string
	APISecret  string
	RatePerSec float64
	UseTestnet bool
}

// NewClient creates a new Binance Client instance.
func NewClient(cfg Config, log *logger.Logger) *Client {
	binance.UseTestnet = cfg.UseTestnet
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	return &Client{
		api:     binance.NewClient(cfg.APIKey, cfg.APISecret),
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		log:     log,
	}
}

// GetOrders retrieves the account's orders on a pair created at or after
// the given time.
func (c *Client) GetOrders(ctx context.Context, pair string, since time.Time) ([]domain.ExchangeOrder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.api.NewListOrdersService().
		Symbol(pair).
		StartTime(since.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing orders for %s: %v", domain.ErrExternalAPI, pair, err)
	}

	orders := make([]domain.ExchangeOrder, 0, len(raw))
	for _, o := range raw {
		order, err := convertOrder(o)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetOrderTrades retrieves the fills of one order.
func (c *Client) GetOrderTrades(ctx context.Context, pair string, externalOrderID string) ([]domain.ExchangeTrade, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	orderID, err := parseInt64(externalOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order id %q", domain.ErrValidation, externalOrderID)
	}

	raw, err := c.api.NewListTradesService().
		Symbol(pair).
		OrderId(orderID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing trades for order %s: %v", domain.ErrExternalAPI, externalOrderID, err)
	}

	trades := make([]domain.ExchangeTrade, 0, len(raw))
	for _, t := range raw {
		trade, err := convertTrade(t)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// GetBalances retrieves the account's non-zero balances.
func (c *Client) GetBalances(ctx context.Context) ([]domain.ExchangeBalance, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching account: %v", domain.ErrExternalAPI, err)
	}

	balances := make([]domain.ExchangeBalance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %s free %q: %v", domain.ErrExternalAPI, b.Asset, b.Free, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %s locked %q: %v", domain.ErrExternalAPI, b.Asset, b.Locked, err)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, domain.ExchangeBalance{
			Asset:  b.Asset,
			Free:   free,
			Locked: locked,
		})
	}
	return balances, nil
}

// SubscribeOrderUpdates opens the user data stream and forwards
// execution reports to updates until ctx is done or stop is called. The
// listen key is refreshed every 30 minutes as the API requires.
func (c *Client) SubscribeOrderUpdates(ctx context.Context, updates chan<- domain.OrderUpdate) (func(), error) {
	listenKey, err := c.api.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: starting user stream: %v", domain.ErrExternalAPI, err)
	}

	handler := func(event *binance.WsUserDataEvent) {
		if event.Event != binance.UserDataEventTypeExecutionReport {
			return
		}
		update, err := convertOrderUpdate(event.OrderUpdate)
		if err != nil {
			c.log.Errorw("dropping malformed order update",
				"symbol", event.OrderUpdate.Symbol, "error", err)
			return
		}
		select {
		case updates <- update:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		c.log.Errorw("user stream error", "error", err)
	}

	doneC, stopC, err := binance.WsUserDataServe(listenKey, handler, errHandler)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing user stream: %v", domain.ErrExternalAPI, err)
	}

	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	go c.keepAlive(keepAliveCtx, listenKey, doneC)

	stop := func() {
		cancelKeepAlive()
		select {
		case stopC <- struct{}{}:
		default:
		}
	}
	return stop, nil
}

func (c *Client) keepAlive(ctx context.Context, listenKey string, doneC chan struct{}) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-doneC:
			return
		case <-ticker.C:
			if err := c.api.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				c.log.Errorw("user stream keepalive failed", "error", err)
			}
		}
	}
}
