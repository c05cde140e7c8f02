package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
)

// Resolver answers "what was this asset worth at (or before) time T" from
// the ingested rate and listing snapshots. It never extrapolates forward
// in time: a missing snapshot is a hard stop, because backdating a
// valuation silently would corrupt NAV history.
type Resolver struct {
	RateRepo domain.RateRepository
	// ReferenceCurrency is the currency all RefCurrency prices are
	// quoted in, e.g. "USD".
	ReferenceCurrency string
}

// NewResolver creates a new Resolver instance.
func NewResolver(rateRepo domain.RateRepository, referenceCurrency string) *Resolver {
	return &Resolver{RateRepo: rateRepo, ReferenceCurrency: referenceCurrency}
}

// Resolve returns the most recent rate/listing for the asset at or
// before atTime. Fails with ErrNoRateAvailable when none exists; the
// caller must not synthesize a value.
func (r *Resolver) Resolve(ctx context.Context, asset domain.AssetRef, atTime time.Time) (domain.RatePoint, error) {
	if err := asset.Validate(); err != nil {
		return domain.RatePoint{}, err
	}

	if asset.IsFiat() {
		if asset.Currency == r.ReferenceCurrency {
			return domain.RatePoint{
				Asset:       asset,
				RefCurrency: decimal.NewFromInt(1),
				Timestamp:   atTime,
				Source:      "reference",
			}, nil
		}
		rate, err := r.RateRepo.LatestCurrencyRate(ctx, asset.Currency, atTime)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.RatePoint{}, fmt.Errorf("%w: currency %s at %s", domain.ErrNoRateAvailable, asset.Currency, atTime.Format(time.RFC3339))
			}
			return domain.RatePoint{}, err
		}
		return domain.RatePoint{
			Asset:       asset,
			RefCurrency: rate.RefCurrency,
			RefCrypto:   rate.RefCrypto,
			Timestamp:   rate.Timestamp,
			Source:      rate.Source,
		}, nil
	}

	listing, err := r.RateRepo.LatestListing(ctx, *asset.CryptoID, atTime)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RatePoint{}, fmt.Errorf("%w: crypto asset %s at %s", domain.ErrNoRateAvailable, asset.CryptoID, atTime.Format(time.RFC3339))
		}
		return domain.RatePoint{}, err
	}
	return domain.RatePoint{
		Asset:       asset,
		RefCurrency: listing.RefCurrency,
		RefCrypto:   listing.RefCrypto,
		Timestamp:   listing.Timestamp,
		Source:      listing.Source,
	}, nil
}

// ValueIn converts an amount of an asset into the given currency using
// the rates in force at atTime. Conversion goes through the reference
// currency when the target is not the reference itself.
func (r *Resolver) ValueIn(ctx context.Context, asset domain.AssetRef, amount decimal.Decimal, currency string, atTime time.Time) (decimal.Decimal, error) {
	if asset.IsFiat() && asset.Currency == currency {
		return amount, nil
	}

	point, err := r.Resolve(ctx, asset, atTime)
	if err != nil {
		return decimal.Zero, err
	}
	refValue := amount.Mul(point.RefCurrency)

	if currency == r.ReferenceCurrency {
		return refValue, nil
	}

	target, err := r.Resolve(ctx, domain.FiatAsset(currency), atTime)
	if err != nil {
		return decimal.Zero, err
	}
	if target.RefCurrency.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero rate for %s", domain.ErrNoRateAvailable, currency)
	}
	return refValue.Div(target.RefCurrency), nil
}

// IngestCurrencyRates appends a batch of currency rate snapshots.
// Entries are immutable once recorded; ingestion never rewrites history.
func (r *Resolver) IngestCurrencyRates(ctx context.Context, batch []*domain.CurrencyRate) error {
	for _, rate := range batch {
		if err := rate.Validate(); err != nil {
			return err
		}
		if err := r.RateRepo.AddCurrencyRate(ctx, rate); err != nil {
			return err
		}
	}
	return nil
}

// IngestListings appends a batch of crypto listing snapshots.
func (r *Resolver) IngestListings(ctx context.Context, batch []*domain.Listing) error {
	for _, listing := range batch {
		if err := listing.Validate(); err != nil {
			return err
		}
		if err := r.RateRepo.AddListing(ctx, listing); err != nil {
			return err
		}
	}
	return nil
}
