package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/safar/tapcart/internal/kafka"
	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent chan Message
	err  error
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	r.sent <- msg
	return r.err
}

type fakePublisher struct {
	key, value []byte
}

func (f *fakePublisher) Publish(ctx context.Context, key, value []byte, headers ...segkafka.Header) error {
	f.key, f.value = key, value
	return nil
}

type memDedup map[string]bool

func (d memDedup) FirstSeen(ctx context.Context, id string) (bool, error) {
	if d[id] {
		return false, nil
	}
	d[id] = true
	return true, nil
}

func (d memDedup) Forget(ctx context.Context, id string) error {
	delete(d, id)
	return nil
}

type flakyNotifier struct {
	failures int
	sent     []Message
}

func (f *flakyNotifier) Send(ctx context.Context, msg Message) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("gateway down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestMessageBodies(t *testing.T) {
	otp := OTPMessage("+919876543210", "123456", 10*time.Minute)
	assert.Equal(t, "Your OTP code is 123456. It expires in 10 minutes. Do not share this code with anyone.", otp.Body)

	desk := OrderPlacedMessage("+91", "ORD-1", "https://x/customer/bill/ORD-1", "pay_at_desk")
	assert.Contains(t, desk.Body, "Please pay at the desk")
	assert.Equal(t, "ORD-1", desk.OrderID)

	card := OrderPlacedMessage("+91", "ORD-1", "https://x/customer/bill/ORD-1", "card")
	assert.Contains(t, card.Body, "has been confirmed")
	assert.NotContains(t, card.Body, "desk")

	approved := PaymentApprovedMessage("+91", "ORD-1", "https://x/b")
	assert.Equal(t, KindPaymentApproved, approved.Kind)
	assert.Contains(t, approved.Body, "payment has been confirmed")
}

func TestDispatchSurvivesCancelledContext(t *testing.T) {
	n := &recordingNotifier{sent: make(chan Message, 1), err: errors.New("gateway down")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	Dispatch(ctx, n, Message{Kind: KindOTP, To: "+1"}, time.Second)

	select {
	case msg := <-n.sent:
		assert.Equal(t, KindOTP, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not sent")
	}
}

func TestKafkaNotifierAndHandler(t *testing.T) {
	pub := &fakePublisher{}
	msg := OrderPlacedMessage("+919876543210", "ORD-9", "http://b", "upi")
	require.NoError(t, NewKafkaNotifier(pub).Send(context.Background(), msg))
	assert.Equal(t, "+919876543210", string(pub.key))

	var env kafka.Envelope
	require.NoError(t, json.Unmarshal(pub.value, &env))
	assert.Equal(t, EventType, env.Type)

	sink := &recordingNotifier{sent: make(chan Message, 2)}
	h := Handler(sink, memDedup{})

	require.NoError(t, h(context.Background(), segkafka.Message{Value: pub.value}))
	require.NoError(t, h(context.Background(), segkafka.Message{Value: pub.value}))

	require.Len(t, sink.sent, 1)
	assert.Equal(t, msg, <-sink.sent)
}

func TestHandlerDropsGarbage(t *testing.T) {
	sink := &recordingNotifier{sent: make(chan Message, 1)}
	err := Handler(sink, nil)(context.Background(), segkafka.Message{Value: []byte("{")})
	assert.NoError(t, err)
	assert.Empty(t, sink.sent)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+********3210", maskPhone("+919876543210"))
	assert.Equal(t, "123", maskPhone("123"))
}

func TestHandlerRedeliversAfterFailedSend(t *testing.T) {
	pub := &fakePublisher{}
	msg := OTPMessage("+919876543210", "654321", 5*time.Minute)
	require.NoError(t, NewKafkaNotifier(pub).Send(context.Background(), msg))

	sender := &flakyNotifier{failures: 1}
	h := Handler(sender, memDedup{})
	delivery := segkafka.Message{Value: pub.value}

	assert.Error(t, h(context.Background(), delivery))
	require.NoError(t, h(context.Background(), delivery))
	require.NoError(t, h(context.Background(), delivery))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, msg, sender.sent[0])
}
