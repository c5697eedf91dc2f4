package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// KafkaConfig selects brokers, topic and optional SASL/PLAIN credentials.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
}

// NewSaramaConfig builds a producer config that waits for all in-sync
// replicas.
func NewSaramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = "chatd"

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	// Records for one room land on one partition so consumers see them in order.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.Username != "" && cfg.Password != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = cfg.Username
		config.Net.SASL.Password = cfg.Password
		config.Net.SASL.Handshake = true
	}
	return config
}

// Kafka publishes records as JSON keyed by room id.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewKafkaWithProducer(producer, cfg.Topic), nil
}

func NewKafkaWithProducer(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(rec.RoomID), 10)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(rec.Type)},
		},
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	log.Debug().Str("type", string(rec.Type)).Uint("room_id", rec.RoomID).
		Int32("partition", partition).Int64("offset", offset).Msg("event published")
	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
