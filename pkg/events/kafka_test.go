package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishPaymentStatus(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	var sent PaymentStatusChanged
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "payments.status", msg.Topic)
		key, _ := msg.Key.Encode()
		assert.Equal(t, "inv_1_2_abc", string(key))
		val, _ := msg.Value.Encode()
		return json.Unmarshal(val, &sent)
	})

	pub := NewKafkaPublisherWithProducer(producer, "", zap.NewNop())
	err := pub.PublishPaymentStatus(context.Background(), PaymentStatusChanged{
		PaymentID:  7,
		Reference:  "inv_1_2_abc",
		Status:     "success",
		Previous:   "pending",
		Amount:     decimal.RequireFromString("50.00"),
		Currency:   "NGN",
		Source:     "recovery",
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(7), sent.PaymentID)
	assert.True(t, sent.Amount.Equal(decimal.RequireFromString("50")))
	require.NoError(t, pub.Close())
}

func TestPublishPaymentStatusFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	pub := NewKafkaPublisherWithProducer(producer, "custom", nil)
	err := pub.PublishPaymentStatus(context.Background(), PaymentStatusChanged{Reference: "r"})
	assert.ErrorContains(t, err, "broker down")
	require.NoError(t, pub.Close())
}
