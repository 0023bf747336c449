// Package notify sends customer text messages. Delivery is best effort:
// callers dispatch and move on, and failures are only logged.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Kind string

const (
	KindOTP             Kind = "otp"
	KindOrderPlaced     Kind = "order_placed"
	KindPaymentApproved Kind = "payment_approved"
)

type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Body    string `json:"body"`
	OrderID string `json:"order_id,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

func OTPMessage(phone, code string, ttl time.Duration) Message {
	return Message{
		Kind: KindOTP,
		To:   phone,
		Body: fmt.Sprintf("Your OTP code is %s. It expires in %d minutes. Do not share this code with anyone.",
			code, int(ttl/time.Minute)),
	}
}

// OrderPlacedMessage tells the customer where their bill is. Pay-at-desk
// orders also remind them to settle at the counter.
func OrderPlacedMessage(phone, orderID, billURL, paymentMethod string) Message {
	body := fmt.Sprintf("Your order %s has been confirmed. Download your bill: %s", orderID, billURL)
	if paymentMethod == "pay_at_desk" {
		body = fmt.Sprintf("Your order %s has been placed. Please pay at the desk. Download your bill: %s", orderID, billURL)
	}
	return Message{Kind: KindOrderPlaced, To: phone, Body: body, OrderID: orderID}
}

func PaymentApprovedMessage(phone, orderID, billURL string) Message {
	return Message{
		Kind:    KindPaymentApproved,
		To:      phone,
		Body:    fmt.Sprintf("Your order %s payment has been confirmed. Download your bill: %s", orderID, billURL),
		OrderID: orderID,
	}
}

// Dispatch sends msg in the background. The send is detached from ctx's
// cancellation so it outlives the request, but keeps its values for
// tracing, and is bounded by timeout.
func Dispatch(ctx context.Context, n Notifier, msg Message, timeout time.Duration) {
	if n == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := n.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "notification failed",
				slog.String("kind", string(msg.Kind)),
				slog.String("order_id", msg.OrderID),
				slog.Any("error", err))
		}
	}()
}

// LogNotifier writes messages to the log instead of an SMS gateway.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "sms",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", maskPhone(msg.To)),
		slog.String("order_id", msg.OrderID),
		slog.String("body", msg.Body))
	return nil
}

// maskPhone keeps the last four digits.
func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	masked := make([]byte, len(p))
	for i := range p {
		if i < len(p)-4 && p[i] != '+' {
			masked[i] = '*'
		} else {
			masked[i] = p[i]
		}
	}
	return string(masked)
}
