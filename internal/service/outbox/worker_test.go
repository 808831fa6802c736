package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/storage/memory"
)

func orderCreatedMessage(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + id,
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"processing"}`),
	}
}

func TestWorker_ProcessOnce_MarksSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreatedMessage("msg-1")}}
	publisher := &stubPublisher{}

	sent, err := NewWorker(repo, publisher, WithRetryBaseDelay(0)).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, []string{"msg-1"}, repo.sent())
	require.Empty(t, repo.failed())
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_DeadLettersAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreatedMessage("msg-2")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}

	sent, err := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, sent)

	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sent())
	require.Equal(t, []string{"msg-2"}, repo.failed())
	require.Equal(t, 1, dlq.calls())

	var envelope dlqEnvelope
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	require.Equal(t, "msg-2", envelope.OutboxID)
	require.Equal(t, domain.EventOrderCreated, envelope.EventType)
	require.JSONEq(t, `{"status":"processing"}`, string(envelope.Payload))
	require.Contains(t, envelope.Error, "broker down")
}

func TestWorker_ProcessOnce_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreatedMessage("msg-3")}}
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	sent, err := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.failed())
}

func TestWorker_ProcessOnce_PullErrorIsReturned(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db unavailable")}
	_, err := NewWorker(repo, &stubPublisher{}).ProcessOnce(context.Background())
	require.ErrorContains(t, err, "db unavailable")
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreatedMessage("msg-4")}}
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWorker(repo, publisher).ProcessOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, publisher.calls())
}

func TestWorker_Backoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, w.backoff(1))
	require.Equal(t, 20*time.Millisecond, w.backoff(2))
	require.Equal(t, 40*time.Millisecond, w.backoff(3))
	require.Equal(t, time.Duration(1<<63-1), w.backoff(100))

	require.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(0)).backoff(3))
}

func TestWorker_RelaysEventsWrittenByOrderTransactions(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	uow := memory.NewUnitOfWork(store)
	repo := memory.NewOutboxRepository(store)
	ctx := context.Background()

	err := uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"a", "b"} {
			if _, err := tx.EnqueueOutbox(ctx, orderCreatedMessage(id)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithBatchSize(10))

	sent, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	sent, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Equal(t, 2, publisher.calls())
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &stubOutboxRepo{}
	worker := NewWorker(repo, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.pulls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewWorker(&stubOutboxRepo{}, nil).Run(context.Background()))
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	pullCount int
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pullCount++
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func (s *stubOutboxRepo) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentIDs...)
}

func (s *stubOutboxRepo) failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedIDs...)
}

func (s *stubOutboxRepo) pulls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullCount
}

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	published []domain.OutboxMessage
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, msg)
	if len(s.sequence) > 0 {
		err := s.sequence[0]
		s.sequence = s.sequence[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var (
	_ domain.OutboxRepository = (*stubOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)
