package redisx

import (
	"fmt"
	"time"
)

const (
	// OTP record for a phone: hash {hash, attempts, used}
	KeyOTP = "otp:code:%s"

	// Resend cooldown marker: otp:cooldown:{phone}
	KeyOTPCooldown = "otp:cooldown:%s"

	// Verified phone marker set after a successful verify: otp:verified:{phone}
	KeyOTPVerified = "otp:verified:%s"

	// Processed event marker: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Checkout idempotency: idem:checkout:{store_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"
)

func Key(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

var (
	TTLDedup = 48 * time.Hour
)
