package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

func buildGoChannelPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	pub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
			Persistent:                     cfg.GoChannel.Persistent,
			BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
		},
		logger,
	)
	return pub, nil, nil
}

// buildHTTPPublisher POSTs each event either to the topic itself (topic_url) or to
// base_url/<topic> (base_url).
func buildHTTPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	switch strings.ToLower(cfg.HTTP.Mode) {
	case "topic_url":
	case "base_url":
		if cfg.HTTP.BaseURL == "" {
			return nil, nil, errors.New("http base_url is required for base_url mode")
		}
	default:
		return nil, nil, fmt.Errorf("unsupported http mode: %s", cfg.HTTP.Mode)
	}
	pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := httpTargetURL(cfg.HTTP, topic)
			if err != nil {
				return nil, err
			}
			return wmhttp.DefaultMarshalMessageFunc(target, msg)
		},
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func buildKafkaPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are required")
	}
	pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func buildNATSPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, nil, errors.New("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingPublisherConfig{
		ClusterID: cfg.NATS.ClusterID,
		ClientID:  cfg.NATS.ClientID,
		Marshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
	}
	pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func buildAMQPPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.AMQP.URL == "" {
		return nil, nil, errors.New("amqp url is required")
	}
	amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmamaqp.NewPublisher(amqpCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

// buildSQLPublisher appends events to a watermill-sql table; the returned close function
// releases the database handle.
func buildSQLPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, nil, errors.New("sql driver and dsn are required")
	}
	schemaAdapter, err := sqlSchemaAdapter(cfg.SQL.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
		SchemaAdapter:        schemaAdapter,
		AutoInitializeSchema: cfg.SQL.AutoInitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pub, db.Close, nil
}

func buildRiverQueuePublisher(cfg WatermillConfig, _ watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	pub, err := newRiverQueuePublisher(cfg.RiverQueue)
	if err != nil {
		return nil, nil, err
	}
	return pub, nil, nil
}

func amqpConfigFromMode(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamaqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlSchemaAdapter(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}

func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", errors.New("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", errors.New("http base_url is empty")
		}
		base := strings.TrimRight(cfg.BaseURL, "/")
		if topic == "" {
			return base, nil
		}
		return base + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
