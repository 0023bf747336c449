package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod("card"))
	assert.True(t, ValidPaymentMethod("upi"))
	assert.True(t, ValidPaymentMethod("pay_at_desk"))
	assert.False(t, ValidPaymentMethod("cash"))
	assert.False(t, ValidPaymentMethod(""))
	assert.False(t, ValidPaymentMethod("CARD"))
}

func TestInitialStatuses(t *testing.T) {
	tests := []struct {
		method        string
		paymentStatus string
		orderStatus   string
	}{
		{PaymentMethodCard, PaymentStatusCompleted, OrderStatusConfirmed},
		{PaymentMethodUPI, PaymentStatusCompleted, OrderStatusConfirmed},
		{PaymentMethodPayAtDesk, PaymentStatusPending, OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			ps, os := InitialStatuses(tt.method)
			assert.Equal(t, tt.paymentStatus, ps)
			assert.Equal(t, tt.orderStatus, os)
		})
	}
}
