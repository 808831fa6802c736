package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/storage/memory"
)

func TestCleanupWorker_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{2, 2, 1}}

	deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, 3, repo.calls())
}

func TestCleanupWorker_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{10}, deleteErrors: []error{nil, errors.New("boom")}}

	deleted, err := NewCleanupWorker(repo, WithBatchSize(10)).DeleteExpired(context.Background(), time.Now().UTC())
	require.ErrorContains(t, err, "boom")
	require.Equal(t, 10, deleted)
}

func TestCleanupWorker_DeleteExpired_ZeroBeforeUsesClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCleanupRepo{}

	_, err := NewCleanupWorker(repo, WithClock(func() time.Time { return fixed })).DeleteExpired(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, fixed, repo.lastBefore())
}

func TestCleanupWorker_RemovesOnlyExpiredKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, err = repo.Get(ctx, "old-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop on context cancel")
	}
}

type stubCleanupRepo struct {
	mu            sync.Mutex
	deleteResults []int
	deleteErrors  []error
	deleteCalls   int
	before        time.Time
}

func (s *stubCleanupRepo) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, nil
}

func (s *stubCleanupRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
}

func (s *stubCleanupRepo) MarkDone(context.Context, string, []byte, int) error { return nil }

func (s *stubCleanupRepo) MarkFailed(context.Context, string, []byte, int) error { return nil }
func (s *stubCleanupRepo) Release(context.Context, string) error                 { return nil }

func (s *stubCleanupRepo) DeleteExpired(_ context.Context, before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.deleteCalls
	s.deleteCalls++
	s.before = before

	if idx < len(s.deleteErrors) && s.deleteErrors[idx] != nil {
		return 0, s.deleteErrors[idx]
	}
	if idx < len(s.deleteResults) {
		return s.deleteResults[idx], nil
	}
	return 0, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls
}

func (s *stubCleanupRepo) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)
