package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher delivers events for verified pushes to one or more brokers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error
	Close() error
}

// PublisherFactory builds the watermill publisher behind a driver name. The optional close
// function releases resources the publisher does not own, such as a *sql.DB.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

// publisherFactories holds the built-in drivers; see publisher_drivers.go.
var publisherFactories = map[string]PublisherFactory{
	"gochannel":  buildGoChannelPublisher,
	"http":       buildHTTPPublisher,
	"kafka":      buildKafkaPublisher,
	"nats":       buildNATSPublisher,
	"amqp":       buildAMQPPublisher,
	"sql":        buildSQLPublisher,
	"riverqueue": buildRiverQueuePublisher,
}

// RegisterPublisherDriver makes a custom driver available to NewPublisher.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	if name == "" || factory == nil {
		return
	}
	publisherFactories[strings.ToLower(name)] = factory
}

// NewPublisher builds a publisher for every configured driver. Drivers that fail to
// initialize are skipped; it is an error only when none could be built.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	mux := &publisherMux{publishers: make(map[string]*driverPublisher, len(drivers))}
	for _, driver := range drivers {
		key := strings.ToLower(strings.TrimSpace(driver))
		pub, err := retryPublisherBuild(cfg.PublishRetry, func() (*driverPublisher, error) {
			return newDriverPublisher(cfg, key, logger)
		})
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{
				"driver": key,
			})
			continue
		}
		mux.publishers[key] = pub
		mux.defaultDrivers = append(mux.defaultDrivers, key)
	}
	if len(mux.publishers) == 0 {
		return nil, errors.New("no publishers available")
	}
	return mux, nil
}

// driverPublisher is one named watermill publisher.
type driverPublisher struct {
	name      string
	publisher message.Publisher
	closeFn   func() error
}

func newDriverPublisher(cfg WatermillConfig, driver string, logger watermill.LoggerAdapter) (*driverPublisher, error) {
	factory, ok := publisherFactories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported watermill driver: %s", driver)
	}
	pub, closeFn, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &driverPublisher{name: driver, publisher: pub, closeFn: closeFn}, nil
}

func (d *driverPublisher) publish(topic string, msg *message.Message) error {
	return d.publisher.Publish(topic, msg)
}

func (d *driverPublisher) Close() error {
	if d.publisher == nil {
		return nil
	}
	err := d.publisher.Close()
	if d.closeFn != nil {
		return errors.Join(err, d.closeFn())
	}
	return err
}

func retryPublisherBuild(cfg PublishRetryConfig, build func() (*driverPublisher, error)) (*driverPublisher, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(cfg.DelayMS) * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		pub, err := build()
		if err == nil {
			return pub, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, lastErr
}

// newEventMessage carries the delivery's original JSON document when there is one, and the
// event summary otherwise. The push fields are repeated as metadata so consumers can route
// without decoding the payload.
func newEventMessage(ctx context.Context, event Event) (*message.Message, error) {
	payload := event.RawPayload
	if len(payload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		payload = encoded
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("provider", event.Provider)
	msg.Metadata.Set("event", event.Name)
	msg.Metadata.Set("request_id", event.RequestID)
	msg.Metadata.Set("ref", event.Ref)
	msg.Metadata.Set("after", event.After)
	msg.Metadata.Set("branch", event.Branch)
	msg.Metadata.Set("issue_number", event.IssueNumber)
	return msg, nil
}

// publisherMux fans an event out to the named drivers, or to every built driver when none
// are named.
type publisherMux struct {
	publishers     map[string]*driverPublisher
	defaultDrivers []string
}

func (m *publisherMux) Publish(ctx context.Context, topic string, event Event) error {
	return m.PublishForDrivers(ctx, topic, event, nil)
}

func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	targets := drivers
	if len(targets) == 0 {
		targets = m.defaultDrivers
	}

	var err error
	for _, driver := range targets {
		pub, ok := m.publishers[strings.ToLower(driver)]
		if !ok {
			err = errors.Join(err, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		// Each driver gets its own message; watermill publishers may ack or mutate it.
		msg, msgErr := newEventMessage(ctx, event)
		if msgErr != nil {
			return errors.Join(err, msgErr)
		}
		if publishErr := pub.publish(topic, msg); publishErr != nil {
			IncPublishError(topic)
			err = errors.Join(err, fmt.Errorf("%s: %w", pub.name, publishErr))
			continue
		}
		IncPublished(topic)
	}
	return err
}

func (m *publisherMux) Close() error {
	var err error
	for _, pub := range m.publishers {
		err = errors.Join(err, pub.Close())
	}
	return err
}
