package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AssetRef identifies the asset a holding or rate refers to: either a
// fiat currency code or a crypto asset id, mutually exclusive.
type AssetRef struct {
	Currency string     // ISO 4217 code when fiat, empty otherwise
	CryptoID *uuid.UUID // crypto asset id when on-chain, nil otherwise
}

// FiatAsset returns an AssetRef for a fiat currency code.
func FiatAsset(code string) AssetRef {
	return AssetRef{Currency: code}
}

// CryptoAssetRef returns an AssetRef for a crypto asset id.
func CryptoAssetRef(id uuid.UUID) AssetRef {
	return AssetRef{CryptoID: &id}
}

// IsFiat reports whether the reference is a fiat currency.
func (a AssetRef) IsFiat() bool {
	return a.Currency != ""
}

// Key returns a stable string key for maps and composite lookups.
func (a AssetRef) Key() string {
	if a.IsFiat() {
		return "fiat:" + a.Currency
	}
	if a.CryptoID != nil {
		return "crypto:" + a.CryptoID.String()
	}
	return ""
}

// Equal reports whether two references identify the same asset.
func (a AssetRef) Equal(other AssetRef) bool {
	return a.Key() == other.Key()
}

// Validate ensures exactly one of {currency, crypto asset} is set.
func (a AssetRef) Validate() error {
	hasFiat := a.Currency != ""
	hasCrypto := a.CryptoID != nil
	if hasFiat == hasCrypto {
		return fmt.Errorf("%w: asset must be exactly one of fiat currency or crypto asset", ErrValidation)
	}
	return nil
}

// CryptoAsset describes a tradable on-chain asset referenced by holdings,
// listings and orders.
type CryptoAsset struct {
	ID            uuid.UUID
	Symbol        string // e.g. "BTC"
	Name          string
	TokenContract string // ERC-20 contract address, empty for native coins
}

// Validate ensures the crypto asset adheres to domain rules.
func (c *CryptoAsset) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: crypto asset symbol cannot be empty", ErrValidation)
	}
	return nil
}
