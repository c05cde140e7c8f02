package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransfer_Validate(t *testing.T) {
	tests := []struct {
		name     string
		transfer Transfer
		wantErr  bool
	}{
		{
			name: "Valid credit",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(50),
				Direction: TransferCredit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: false,
		},
		{
			name: "Valid debit",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(-50),
				Direction: TransferDebit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: false,
		},
		{
			name: "Zero amount rejected",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.Zero,
				Direction: TransferCredit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: true,
		},
		{
			name: "Debit with positive amount rejected",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(50),
				Direction: TransferDebit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: true,
		},
		{
			name: "Credit with negative amount rejected",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(-50),
				Direction: TransferCredit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: true,
		},
		{
			name: "Negative fee rejected",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(50),
				Fee:       decimal.NewFromInt(-1),
				Direction: TransferCredit,
				Kind:      TransferMovement,
				Period:    "202401",
			},
			wantErr: true,
		},
		{
			name: "Unknown kind rejected",
			transfer: Transfer{
				ID:        uuid.New(),
				HoldingID: uuid.New(),
				Amount:    decimal.NewFromInt(50),
				Direction: TransferCredit,
				Kind:      "DIVIDEND",
				Period:    "202401",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.transfer.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransfer_Mirrors(t *testing.T) {
	debitID := uuid.New()
	creditID := uuid.New()

	debit := Transfer{
		ID:                 debitID,
		HoldingID:          uuid.New(),
		OppositeTransferID: &creditID,
		Amount:             decimal.NewFromInt(-75),
		Direction:          TransferDebit,
		Kind:               TransferMovement,
		Period:             "202401",
	}
	credit := Transfer{
		ID:                 creditID,
		HoldingID:          uuid.New(),
		OppositeTransferID: &debitID,
		Amount:             decimal.NewFromInt(75),
		Direction:          TransferCredit,
		Kind:               TransferMovement,
		Period:             "202401",
	}

	assert.True(t, debit.Mirrors(&credit))
	assert.True(t, credit.Mirrors(&debit))

	// A magnitude mismatch breaks the pairing.
	skewed := credit
	skewed.Amount = decimal.NewFromInt(74)
	assert.False(t, debit.Mirrors(&skewed))

	// An unlinked transfer never mirrors.
	unlinked := credit
	unlinked.OppositeTransferID = nil
	assert.False(t, debit.Mirrors(&unlinked))
}
