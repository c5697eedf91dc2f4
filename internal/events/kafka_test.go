package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafka_PublishKeyedByRoom(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig(KafkaConfig{}))
	rec := Record{Type: RoomClaimed, RoomID: 7, ActorID: 3, Status: "active", At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chat.events" {
			t.Errorf("topic = %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "7" {
			t.Errorf("key = %s, want 7", key)
		}
		raw, _ := msg.Value.Encode()
		var got Record
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.Type != RoomClaimed || got.RoomID != 7 || got.ActorID != 3 {
			t.Errorf("payload = %+v", got)
		}
		return nil
	})

	k := NewKafkaWithProducer(producer, "chat.events")
	if err := k.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKafka_PublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig(KafkaConfig{}))
	boom := errors.New("broker down")
	producer.ExpectSendMessageAndFail(boom)

	k := NewKafkaWithProducer(producer, "chat.events")
	if err := k.Publish(context.Background(), Record{Type: RoomCreated, RoomID: 1}); !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want %v", err, boom)
	}
	_ = k.Close()
}

func TestKafka_PublishCanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig(KafkaConfig{}))
	k := NewKafkaWithProducer(producer, "chat.events")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.Publish(ctx, Record{Type: RoomCreated}); err == nil {
		t.Error("Publish() should fail on a canceled context")
	}
	_ = k.Close()
}

func TestNewSaramaConfig_SASL(t *testing.T) {
	cfg := NewSaramaConfig(KafkaConfig{Username: "u", Password: "p"})
	if !cfg.Net.SASL.Enable || cfg.Net.SASL.User != "u" {
		t.Errorf("SASL not configured: %+v", cfg.Net.SASL)
	}
	if NewSaramaConfig(KafkaConfig{}).Net.SASL.Enable {
		t.Error("SASL should stay off without credentials")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config invalid: %v", err)
	}
}
