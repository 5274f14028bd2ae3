//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"fantasy_ingest/internal/domain"
	"fantasy_ingest/testdata/utils"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCreated() {
	cfg := s.config("create")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	resource := &domain.Resource{
		ID:                1,
		Title:             "Week 1 Waiver Wire Targets",
		CanonicalURL:      "https://www.youtube.com/watch?v=abc123",
		ContentType:       domain.ContentTypeVideo,
		Category:          "Waiver Wire",
		SourceDisplayName: "FantasyPros",
		Duration:          utils.Ptr("12:05"),
		ViewCount:         utils.Ptr(int64(1500)),
		PublishedAt:       time.Now().Truncate(time.Millisecond),
		Tags:              []string{"PPR", "WR"},
		Active:            true,
	}

	s.Require().NoError(pub.Publish(s.ctx, resource, true))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(ActionCreated, msg.Type)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received ResourceMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(ActionCreated, received.Action)
	s.Equal("Week 1 Waiver Wire Targets", received.Resource.Title)
	s.Equal(domain.ContentTypeVideo, received.Resource.ContentType)
	s.Require().NotNil(received.Resource.Duration)
	s.Equal("12:05", *received.Resource.Duration)
	s.Equal([]string{"PPR", "WR"}, received.Resource.Tags)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishUpdated() {
	cfg := s.config("update")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	resource := &domain.Resource{
		ID:           2,
		Title:        "Trade Value Chart",
		CanonicalURL: "https://example.com/trade-chart",
		ContentType:  domain.ContentTypeArticle,
		PublishedAt:  time.Now().Truncate(time.Millisecond),
	}

	s.Require().NoError(pub.Publish(s.ctx, resource, false))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received ResourceMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(ActionUpdated, received.Action)
	s.Equal(int64(2), received.Resource.ID)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
