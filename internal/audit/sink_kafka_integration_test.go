//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"medledger/internal/audit"
	"medledger/internal/platform/config"
)

type KafkaSinkSuite struct {
	suite.Suite
	brokers []string
	ctx     context.Context
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := redpanda.Run(s.ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.7")
	s.Require().NoError(err)

	broker, err := container.KafkaSeedBroker(s.ctx)
	s.Require().NoError(err)
	s.brokers = []string{broker}
}

func (s *KafkaSinkSuite) TestPublish() {
	cfg := config.KafkaConfig{Brokers: s.brokers, Topic: "medledger.audit.test"}
	sink, err := audit.NewKafkaSink(s.ctx, cfg)
	s.Require().NoError(err)
	defer sink.Close()

	entry := audit.Entry{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Action:    "Approved",
		Patient:   "0xpatient",
		Provider:  "0xprovider",
		Seq:       7,
	}
	s.Require().NoError(sink.Publish(s.ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal([]byte("0xpatient"), records[0].Key)

	var got audit.Entry
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(entry.Action, got.Action)
	s.Equal(entry.Seq, got.Seq)
	s.Equal(entry.Patient, got.Patient)
}

func (s *KafkaSinkSuite) TestTopicAlreadyExists() {
	cfg := config.KafkaConfig{Brokers: s.brokers, Topic: "medledger.audit.existing"}

	first, err := audit.NewKafkaSink(s.ctx, cfg)
	s.Require().NoError(err)
	first.Close()

	second, err := audit.NewKafkaSink(s.ctx, cfg)
	s.Require().NoError(err)
	second.Close()
}
