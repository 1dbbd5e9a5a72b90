package consumers

import (
	"context"
	"errors"
	"testing"

	"tixledger/internal/models"

	"github.com/nats-io/stan.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscription struct {
	subject string
	queue   string
}

type fakeSubscriber struct {
	subscriptions []subscription
	failOn        string
	closed        bool
}

func (f *fakeSubscriber) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	if subject == f.failOn {
		return nil, errors.New("subscribe refused")
	}
	f.subscriptions = append(f.subscriptions, subscription{subject: subject, queue: queue})
	return nil, nil
}

func (f *fakeSubscriber) Close() error {
	f.closed = true
	return nil
}

func TestConsumerService_StartSubscribesQueueGroup(t *testing.T) {
	sub := &fakeSubscriber{}
	cs := &ConsumerService{nats: sub, handlers: NewHandlers(&fakeIssuer{}, 3)}

	require.NoError(t, cs.Start())
	assert.Equal(t, []subscription{
		{subject: models.EventTicketIssueRequested, queue: queueGroup},
		{subject: models.EventPaymentMismatch, queue: queueGroup},
	}, sub.subscriptions)

	require.NoError(t, cs.Shutdown(context.Background()))
	assert.True(t, sub.closed)
}

func TestConsumerService_StartFailsOnSubscribeError(t *testing.T) {
	sub := &fakeSubscriber{failOn: models.EventPaymentMismatch}
	cs := &ConsumerService{nats: sub, handlers: NewHandlers(&fakeIssuer{}, 3)}

	err := cs.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), models.EventPaymentMismatch)
}
