package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/xaviergoby/bstdethintg-sub000/internal/adapter/exchange/binance"
	"github.com/xaviergoby/bstdethintg-sub000/internal/adapter/explorer"
	"github.com/xaviergoby/bstdethintg-sub000/internal/adapter/repository/postgres"
	"github.com/xaviergoby/bstdethintg-sub000/internal/config"
	"github.com/xaviergoby/bstdethintg-sub000/internal/lock"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/monitoring"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/funding"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/ledger"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/nav"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/periodclose"
	"github.com/xaviergoby/bstdethintg-sub000/internal/usecase/rates"
)

const (
	defaultAllocationEpsilon = "0.01"
	// closeGrace delays the scheduled close past the period boundary so
	// late trade and rate snapshots have settled.
	closeGrace = 15 * time.Minute
	// auditInterval paces the on-chain wallet balance audit.
	auditInterval = time.Hour
)

func main() {
	// 1. Configuration and logger
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	// 2. Database and repositories
	db, err := postgres.NewDB(cfg.Database.ConnString())
	if err != nil {
		logg.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	fundRepo := postgres.NewFundRepository(db)
	holdingRepo := postgres.NewHoldingRepository(db)
	transferRepo := postgres.NewTransferRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	rateRepo := postgres.NewRateRepository(db)
	navRepo := postgres.NewNavRepository(db)

	// 3. Services
	epsilonStr := cfg.Ledger.AllocationEpsilon
	if epsilonStr == "" {
		epsilonStr = defaultAllocationEpsilon
	}
	epsilon, err := decimal.NewFromString(epsilonStr)
	if err != nil {
		logg.Fatalw("invalid allocation epsilon", "value", epsilonStr, "error", err)
	}

	resolver := rates.NewResolver(rateRepo, cfg.Ledger.ReferenceCurrency)
	ledgerSvc := ledger.NewService(holdingRepo, transferRepo)
	fundingSvc := funding.NewService(orderRepo, epsilon)
	navCalc := nav.NewCalculator(fundRepo, holdingRepo, transferRepo, orderRepo, navRepo, resolver)

	locker, err := lock.New(cfg.Lock)
	if err != nil {
		logg.Fatalw("failed to create fund locker", "error", err)
	}
	defer locker.Close()

	// 4. Metrics endpoint
	metrics := monitoring.NewMetrics("fundledger", prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logg.Infow("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logg.Errorw("metrics endpoint stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Period-close scheduler
	closer := periodclose.NewCloser(fundRepo, holdingRepo, ledgerSvc, navCalc,
		resolver, locker, logg, metrics, cfg.Ledger.CloseWorkers)
	scheduler := periodclose.NewScheduler(closer, closeGrace, logg)
	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			logg.Errorw("period close scheduler stopped", "error", err)
		}
	}()

	// 6. Exchange order-update stream
	if cfg.Exchange.APIKey != "" {
		exchange := binance.NewClient(binance.Config{
			APIKey:     cfg.Exchange.APIKey,
			APISecret:  cfg.Exchange.APISecret,
			RatePerSec: cfg.Exchange.RatePerSec,
			UseTestnet: cfg.Exchange.UseTestnet,
		}, logg)
		reconciler := funding.NewStreamReconciler(exchange, orderRepo, fundingSvc, logg, metrics)
		go func() {
			if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
				logg.Errorw("order update stream stopped", "error", err)
			}
		}()
	} else {
		logg.Infow("exchange stream disabled, no API key configured")
	}

	// 7. On-chain wallet balance audit
	if cfg.Explorer.URL != "" && cfg.Explorer.Wallet != "" {
		chain := explorer.NewClient(explorer.Config{
			BaseURL:    cfg.Explorer.URL,
			APIKey:     cfg.Explorer.APIKey,
			RatePerSec: cfg.Explorer.RatePerSec,
		}, logg)
		go auditWalletBalances(ctx, chain, cfg.Explorer.Wallet, cfg.Explorer.Contracts, logg)
	}

	logg.Infow("fund ledger service started",
		"reference_currency", cfg.Ledger.ReferenceCurrency,
		"close_workers", cfg.Ledger.CloseWorkers,
	)

	// 8. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logg.Infow("shutting down", "signal", sig.String())
	cancel()
}

// auditWalletBalances periodically logs the custody wallet's on-chain
// balances so drift against booked holdings shows up in operations.
func auditWalletBalances(ctx context.Context, chain *explorer.Client, wallet string, contracts []string, logg *logger.Logger) {
	ticker := time.NewTicker(auditInterval)
	defer ticker.Stop()

	for {
		balances, err := chain.GetBalances(ctx, wallet, contracts)
		if err != nil {
			logg.Errorw("wallet balance audit failed", "wallet", wallet, "error", err)
		} else {
			for _, b := range balances {
				logg.Infow("on-chain balance",
					"wallet", wallet,
					"symbol", b.Symbol,
					"contract", b.Contract,
					"balance", b.Balance.String(),
				)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
