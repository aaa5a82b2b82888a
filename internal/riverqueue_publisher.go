package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"
)

// riverQueuePublisher inserts one River job per message, so River workers can pick up
// pushes without a broker in between. Job args are the message payload; job metadata is
// the message metadata plus the topic.
type riverQueuePublisher struct {
	db    *sql.DB
	cfg   RiverQueueConfig
	query string
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, errors.New("riverqueue dsn is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "river_job"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &riverQueuePublisher{db: db, cfg: cfg, query: riverInsertQuery(table)}, nil
}

func riverInsertQuery(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		pq.QuoteIdentifier(table),
	)
}

func (p *riverQueuePublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if err := p.insert(msg.Context(), topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *riverQueuePublisher) insert(ctx context.Context, topic string, msg *message.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	metadata := make(map[string]string, len(msg.Metadata)+1)
	for key, value := range msg.Metadata {
		metadata[key] = value
	}
	metadata["topic"] = topic
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(
		ctx,
		p.query,
		string(msg.Payload),
		p.cfg.Kind,
		p.cfg.MaxAttempts,
		string(encodedMetadata),
		p.cfg.Priority,
		p.cfg.Queue,
		pq.Array(p.cfg.Tags),
	)
	return err
}

func (p *riverQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
