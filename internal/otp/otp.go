// Package otp issues and checks one-time codes bound to a phone number.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/phone"
)

var (
	ErrExpired  = errors.New("otp expired")
	ErrMismatch = errors.New("otp mismatch")
	ErrCooldown = errors.New("otp recently sent")
)

const codeDigits = 6

type Verifier struct {
	store         Store
	notifier      notify.Notifier
	cfg           config.OTPConfig
	// notifyTimeout bounds each background SMS send.
	notifyTimeout time.Duration
}

func NewVerifier(store Store, n notify.Notifier, cfg config.OTPConfig, notifyTimeout time.Duration) *Verifier {
	return &Verifier{store: store, notifier: n, cfg: cfg, notifyTimeout: notifyTimeout}
}

// Issue creates a fresh code for the phone and sends it by SMS in the
// background. The returned phone is the normalized number the code is
// bound to.
func (v *Verifier) Issue(ctx context.Context, rawPhone string) (number, code string, err error) {
	number, err = phone.Normalize(rawPhone, v.cfg.DefaultCountry)
	if err != nil {
		return "", "", err
	}

	code, err = generateCode()
	if err != nil {
		return "", "", err
	}

	if err := v.store.Save(ctx, number, hashCode(number, code), v.cfg.TTL, v.cfg.ResendCooldown); err != nil {
		return "", "", err
	}

	notify.Dispatch(ctx, v.notifier, notify.OTPMessage(number, code, v.cfg.TTL), v.notifyTimeout)

	return number, code, nil
}

// Verify consumes the pending code for the phone. A code works once; a
// second attempt with the same code is a mismatch.
func (v *Verifier) Verify(ctx context.Context, rawPhone, code string) (string, error) {
	number, err := phone.Normalize(rawPhone, v.cfg.DefaultCountry)
	if err != nil {
		return "", err
	}

	code = strings.TrimSpace(code)
	if len(code) != codeDigits {
		return "", ErrMismatch
	}

	res, err := v.store.Check(ctx, number, hashCode(number, code), v.cfg.MaxAttempts)
	if err != nil {
		return "", err
	}

	switch res {
	case CheckOK:
	case CheckMissing:
		return "", ErrExpired
	default:
		return "", ErrMismatch
	}

	if err := v.store.MarkVerified(ctx, number, v.cfg.VerifiedTTL); err != nil {
		return "", err
	}
	return number, nil
}

func (v *Verifier) IsVerified(ctx context.Context, rawPhone string) (bool, error) {
	number, err := phone.Normalize(rawPhone, v.cfg.DefaultCountry)
	if err != nil {
		return false, err
	}
	return v.store.IsVerified(ctx, number)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func hashCode(phone, code string) string {
	sum := sha256.Sum256([]byte(phone + ":" + code))
	return hex.EncodeToString(sum[:])
}
