package infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/infra/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func outboxRow(id int64, aggregate, event string) domain.OutboxRow {
	return domain.OutboxRow{
		ID:            id,
		EventID:       uuid.New(),
		AggregateType: aggregate,
		AggregateID:   "42",
		EventType:     event,
		PartitionKey:  "player:42",
		Payload:       json.RawMessage(`{"amount":10}`),
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "tower.raid.completed", Topic("tower", "tower.raid.completed"))
	assert.Equal(t, "staging.guild.member.changed", Topic("staging", "tower.guild.member.changed"))
}

func TestOutboxPoller_PublishesInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockOutboxSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)
	ctx := context.Background()

	rows := []domain.OutboxRow{outboxRow(7, "ledger", "tower.ledger.transaction.posted"), outboxRow(8, "raid", "tower.raid.completed")}
	source.EXPECT().FetchUnpublished(gomock.Any(), 100).Return(rows, nil)
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), "tower.ledger.transaction.posted", []byte("player:42"), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _, value []byte) error {
				var msg OutboxMessage
				require.NoError(t, json.Unmarshal(value, &msg))
				assert.Equal(t, rows[0].EventID.String(), msg.EventID)
				assert.JSONEq(t, `{"amount":10}`, string(msg.Payload))
				return nil
			}),
		pub.EXPECT().Publish(gomock.Any(), "tower.raid.completed", gomock.Any(), gomock.Any()).Return(nil),
	)
	source.EXPECT().MarkPublished(gomock.Any(), []int64{7, 8}).Return(nil)

	p := NewOutboxPoller(source, pub, nil, "tower", quietLogger())
	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOutboxPoller_StopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockOutboxSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)
	ctx := context.Background()
	breaker := guard.NewCircuitBreaker(1, time.Minute)

	rows := []domain.OutboxRow{outboxRow(1, "pvp", "tower.pvp.match.recorded"), outboxRow(2, "pvp", "tower.pvp.match.recorded"), outboxRow(3, "guild", "tower.guild.created")}
	source.EXPECT().FetchUnpublished(gomock.Any(), gomock.Any()).Return(rows, nil)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	source.EXPECT().MarkPublished(gomock.Any(), []int64{1}).Return(nil)

	p := NewOutboxPoller(source, pub, breaker, "tower", quietLogger())
	n, err := p.PollOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, guard.CircuitOpen, breaker.State(kafkaCircuit))

	// open circuit skips the poll entirely
	n, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxPoller_EmptyBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockOutboxSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)

	source.EXPECT().FetchUnpublished(gomock.Any(), gomock.Any()).Return(nil, nil)

	p := NewOutboxPoller(source, pub, nil, "tower", quietLogger())
	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
