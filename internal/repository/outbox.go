package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
)

type outboxRepo struct {
	db DBTX
}

// Insert writes an outbox event using the camelCase column names.
func (r *outboxRepo) Insert(ctx context.Context, draft domain.OutboxDraft) error {
	headers := draft.Headers
	if headers == nil {
		headers = json.RawMessage(`{}`)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_outbox
		  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.EventID,
		string(draft.AggregateType),
		draft.AggregateID,
		string(draft.EventType),
		draft.PartitionKey,
		[]byte(headers),
		[]byte(draft.Payload),
		draft.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepo) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT "id", "eventId", "aggregateType", "aggregateId", "eventType",
		       "partitionKey", "headers", "payload", "occurredAt"
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id" ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxRow
	for rows.Next() {
		var e domain.OutboxRow
		var headers, payload []byte
		err := rows.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID,
			&e.EventType, &e.PartitionKey, &headers, &payload, &e.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Headers = json.RawMessage(headers)
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *outboxRepo) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE event_outbox SET "publishedAt" = now() WHERE "id" = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// OutboxFeed adapts a Store to the poller's source port.
type OutboxFeed struct {
	Store Store
}

// FetchUnpublished reads a batch of pending events.
func (f OutboxFeed) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRow, error) {
	var out []domain.OutboxRow
	err := f.Store.Read(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Outbox().FetchUnpublished(ctx, limit)
		return err
	})
	return out, err
}

// MarkPublished stamps the rows in one transaction.
func (f OutboxFeed) MarkPublished(ctx context.Context, ids []int64) error {
	return f.Store.InTx(ctx, func(tx Tx) error {
		return tx.Outbox().MarkPublished(ctx, ids)
	})
}
