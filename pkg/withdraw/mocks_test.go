package withdraw

import (
	"context"

	"github.com/shopspring/decimal"
)

type mockTransferor struct {
	SendNativeFunc func(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error)
	SendTokenFunc  func(ctx context.Context, contractAddress, toAddress string, amount decimal.Decimal, decimals int32) (string, error)
}

func (m *mockTransferor) SendNative(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error) {
	return m.SendNativeFunc(ctx, toAddress, amount)
}

func (m *mockTransferor) SendToken(ctx context.Context, contractAddress, toAddress string, amount decimal.Decimal, decimals int32) (string, error) {
	return m.SendTokenFunc(ctx, contractAddress, toAddress, amount, decimals)
}

type mockAdmitter struct {
	AllowFunc func() bool
}

func (m *mockAdmitter) Allow() bool {
	if m.AllowFunc == nil {
		return true
	}
	return m.AllowFunc()
}
