package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("rpc call: %w", context.DeadlineExceeded), want: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:8545: connection refused"), want: true},
		{name: "rate limited upstream", err: errors.New("429 too many requests"), want: true},
		{name: "insufficient funds", err: errors.New("insufficient funds for gas * price + value"), want: false},
		{name: "nonce too low", err: errors.New("nonce too low"), want: false},
		{name: "invalid address", err: ErrInvalidAddress, want: false},
		{name: "ambiguous", err: ErrAmbiguousSubmit, want: false},
		{name: "wrapped ambiguous", err: fmt.Errorf("%w: timeout", ErrAmbiguousSubmit), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBaseUnitConversion(t *testing.T) {
	one := decimal.RequireFromString("1.5")
	units := ToBaseUnits(one, 18)
	assert.Equal(t, "1500000000000000000", units.String())
	assert.True(t, FromBaseUnits(units, 18).Equal(one))

	sixDecimals := ToBaseUnits(decimal.RequireFromString("2.000001"), 6)
	assert.Equal(t, "2000001", sixDecimals.String())

	// Precision below the token scale truncates.
	dust := ToBaseUnits(decimal.RequireFromString("0.0000019"), 6)
	assert.Equal(t, "1", dust.String())

	assert.True(t, FromBaseUnits(big.NewInt(0), 18).IsZero())
}
